// Package projects maps quote records onto the document store.
//
// Stored documents may predate the current record shapes: decoding fills in a missing quote
// mode, normalises material type spellings and replaces nil maps, so callers only ever see
// records that pass validation.
package projects

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Simplici0/taller/internal/docstore"
	"github.com/Simplici0/taller/internal/quote"
)

const (
	ProjectsCollection  = "projects"
	CompaniesCollection = "companies"
)

var (
	// ErrNotFound is returned when a project, fitting or company does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrModeImmutable is returned when an update tries to change a project's quote mode.
	ErrModeImmutable = errors.New("quote mode cannot change after creation")
)

// FittingsCollection is the sub-collection holding a project's fittings.
func FittingsCollection(projectID string) string {
	return docstore.Path(ProjectsCollection, projectID, "fittings")
}

// Repository reads and writes projects, fittings and company profiles.
type Repository struct {
	store *docstore.Store
	now   func() time.Time
	newID func() string
}

// NewRepository returns a repository over store.
func NewRepository(store *docstore.Store) *Repository {
	return &Repository{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
}

// DecodeProject converts a stored project document into a quote.Project.
func DecodeProject(doc docstore.Document) (quote.Project, error) {
	var p quote.Project
	if err := doc.Decode(&p); err != nil {
		return quote.Project{}, err
	}
	p.ID = doc.ID
	if p.Mode == "" {
		p.Mode = quote.ModeIndividual
	}
	if p.LineItems == nil {
		p.LineItems = []quote.LineItem{}
	}
	for i := range p.LineItems {
		normaliseLineItem(&p.LineItems[i])
	}
	return p, nil
}

func normaliseLineItem(item *quote.LineItem) {
	if item.SizePrices == nil {
		item.SizePrices = map[string]quote.SizeSelection{}
	}
	if item.MaterialItems == nil {
		item.MaterialItems = []quote.MaterialItem{}
	}
	for i := range item.MaterialItems {
		item.MaterialItems[i].Type = NormaliseMaterialType(string(item.MaterialItems[i].Type))
	}
}

// NormaliseMaterialType maps legacy spellings ("Tela", "FABRIC", "avío") onto the material types.
// Unrecognised values become the empty type, which never counts as fabric.
func NormaliseMaterialType(raw string) quote.MaterialType {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "fabric", "tela":
		return quote.MaterialFabric
	case "trim", "avio", "avío", "avios", "avíos":
		return quote.MaterialTrim
	case "supply", "insumo", "insumos":
		return quote.MaterialSupply
	default:
		return ""
	}
}

// DecodeFitting converts a stored fitting document into a quote.Fitting.
func DecodeFitting(doc docstore.Document) (quote.Fitting, error) {
	var f quote.Fitting
	if err := doc.Decode(&f); err != nil {
		return quote.Fitting{}, err
	}
	f.ID = doc.ID
	if f.Sizes == nil {
		f.Sizes = map[string]string{}
	}
	if f.Source == "" {
		f.Source = quote.SourceStaff
	}
	return f, nil
}

func notFound(err error, what, id string) error {
	if errors.Is(err, docstore.ErrNotFound) {
		return fmt.Errorf("%w: %s %s", ErrNotFound, what, id)
	}
	return err
}

// CreateProject stores a new project. An empty quote mode defaults to individual.
func (r *Repository) CreateProject(ctx context.Context, p quote.Project) (quote.Project, error) {
	if p.Mode == "" {
		p.Mode = quote.ModeIndividual
	}
	if p.LineItems == nil {
		p.LineItems = []quote.LineItem{}
	}
	for i := range p.LineItems {
		if p.LineItems[i].ID == "" {
			p.LineItems[i].ID = r.newID()
		}
		normaliseLineItem(&p.LineItems[i])
	}
	if err := p.Validate(); err != nil {
		return quote.Project{}, err
	}

	now := r.now()
	p.ID = ""
	p.CreatedAt = now
	p.UpdatedAt = now
	p.TotalFabricLength = 0
	p.TotalFabricCost = 0
	p.ConsumptionUpdatedAt = nil

	doc, err := r.store.Create(ctx, ProjectsCollection, p)
	if err != nil {
		return quote.Project{}, fmt.Errorf("create project: %w", err)
	}
	p.ID = doc.ID
	return p, nil
}

// GetProject reads one project.
func (r *Repository) GetProject(ctx context.Context, id string) (quote.Project, error) {
	doc, err := r.store.Get(ctx, ProjectsCollection, id)
	if err != nil {
		return quote.Project{}, notFound(err, "project", id)
	}
	return DecodeProject(doc)
}

// ListProjects returns the projects of companyID, or every project when companyID is empty.
func (r *Repository) ListProjects(ctx context.Context, companyID string) ([]quote.Project, error) {
	docs, err := r.store.List(ctx, ProjectsCollection)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}

	out := make([]quote.Project, 0, len(docs))
	for _, doc := range docs {
		p, err := DecodeProject(doc)
		if err != nil {
			return nil, err
		}
		if companyID != "" && p.CompanyID != companyID {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// UpdateLineItems replaces the line items of a project. mode, when set, must match the
// project's existing quote mode.
func (r *Repository) UpdateLineItems(ctx context.Context, id string, mode quote.Mode, items []quote.LineItem) (quote.Project, error) {
	var updated quote.Project
	err := r.store.RunTransaction(ctx, func(ctx context.Context, tx *docstore.Tx) error {
		doc, err := tx.Get(ctx, ProjectsCollection, id)
		if err != nil {
			return notFound(err, "project", id)
		}
		p, err := DecodeProject(doc)
		if err != nil {
			return err
		}
		if mode != "" && mode != p.Mode {
			return fmt.Errorf("%w: project %s is %s", ErrModeImmutable, id, p.Mode)
		}

		p.LineItems = make([]quote.LineItem, len(items))
		copy(p.LineItems, items)
		for i := range p.LineItems {
			if p.LineItems[i].ID == "" {
				p.LineItems[i].ID = r.newID()
			}
			normaliseLineItem(&p.LineItems[i])
		}
		if err := p.Validate(); err != nil {
			return err
		}
		p.UpdatedAt = r.now()

		if err := tx.Set(ProjectsCollection, id, p); err != nil {
			return err
		}
		updated = p
		return nil
	})
	if err != nil {
		return quote.Project{}, fmt.Errorf("update line items: %w", err)
	}
	return updated, nil
}

// DeleteProject removes a project together with its fittings.
func (r *Repository) DeleteProject(ctx context.Context, id string) error {
	err := r.store.RunTransaction(ctx, func(ctx context.Context, tx *docstore.Tx) error {
		if _, err := tx.Get(ctx, ProjectsCollection, id); err != nil {
			return notFound(err, "project", id)
		}
		fittings, err := tx.List(ctx, FittingsCollection(id))
		if err != nil {
			return err
		}
		for _, f := range fittings {
			tx.Delete(f.Collection, f.ID)
		}
		tx.Delete(ProjectsCollection, id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	return nil
}

// CreateFitting records a participant's sizes on an existing project.
func (r *Repository) CreateFitting(ctx context.Context, projectID string, f quote.Fitting) (quote.Fitting, error) {
	if f.Sizes == nil {
		f.Sizes = map[string]string{}
	}
	if f.Source == "" {
		f.Source = quote.SourceStaff
	}
	if err := f.Validate(); err != nil {
		return quote.Fitting{}, err
	}

	f.ID = r.newID()
	f.ProjectID = projectID
	f.Confirmed = false
	f.ConfirmedAt = nil
	f.CreatedAt = r.now()

	err := r.store.RunTransaction(ctx, func(ctx context.Context, tx *docstore.Tx) error {
		if _, err := tx.Get(ctx, ProjectsCollection, projectID); err != nil {
			return notFound(err, "project", projectID)
		}
		return tx.Set(FittingsCollection(projectID), f.ID, f)
	})
	if err != nil {
		return quote.Fitting{}, fmt.Errorf("create fitting: %w", err)
	}
	return f, nil
}

// GetFitting reads one fitting of a project.
func (r *Repository) GetFitting(ctx context.Context, projectID, fittingID string) (quote.Fitting, error) {
	doc, err := r.store.Get(ctx, FittingsCollection(projectID), fittingID)
	if err != nil {
		return quote.Fitting{}, notFound(err, "fitting", fittingID)
	}
	return DecodeFitting(doc)
}

// ListFittings returns every fitting of a project in creation order.
func (r *Repository) ListFittings(ctx context.Context, projectID string) ([]quote.Fitting, error) {
	docs, err := r.store.List(ctx, FittingsCollection(projectID))
	if err != nil {
		return nil, fmt.Errorf("list fittings: %w", err)
	}
	out := make([]quote.Fitting, 0, len(docs))
	for _, doc := range docs {
		f, err := DecodeFitting(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

// ConfirmFitting marks a fitting confirmed. changed is false when it already was, in which
// case nothing is written.
func (r *Repository) ConfirmFitting(ctx context.Context, projectID, fittingID string) (quote.Fitting, bool, error) {
	var (
		confirmed quote.Fitting
		changed   bool
	)
	err := r.store.RunTransaction(ctx, func(ctx context.Context, tx *docstore.Tx) error {
		changed = false
		doc, err := tx.Get(ctx, FittingsCollection(projectID), fittingID)
		if err != nil {
			return notFound(err, "fitting", fittingID)
		}
		f, err := DecodeFitting(doc)
		if err != nil {
			return err
		}
		if f.Confirmed {
			confirmed = f
			return nil
		}

		now := r.now()
		f.Confirmed = true
		f.ConfirmedAt = &now
		if err := tx.Set(FittingsCollection(projectID), fittingID, f); err != nil {
			return err
		}
		confirmed = f
		changed = true
		return nil
	})
	if err != nil {
		return quote.Fitting{}, false, fmt.Errorf("confirm fitting: %w", err)
	}
	return confirmed, changed, nil
}

// GetCompany reads a company profile.
func (r *Repository) GetCompany(ctx context.Context, id string) (quote.Company, error) {
	doc, err := r.store.Get(ctx, CompaniesCollection, id)
	if err != nil {
		return quote.Company{}, notFound(err, "company", id)
	}
	var c quote.Company
	if err := doc.Decode(&c); err != nil {
		return quote.Company{}, err
	}
	c.ID = doc.ID
	return c, nil
}

// SaveCompany creates or replaces a company profile.
func (r *Repository) SaveCompany(ctx context.Context, c quote.Company) error {
	if c.ID == "" {
		return fmt.Errorf("%w: company id is required", quote.ErrInvalid)
	}
	if err := c.Validate(); err != nil {
		return err
	}
	if err := r.store.Set(ctx, CompaniesCollection, c.ID, c); err != nil {
		return fmt.Errorf("save company: %w", err)
	}
	return nil
}
