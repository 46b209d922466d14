package projects

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Simplici0/taller/internal/db"
	"github.com/Simplici0/taller/internal/docstore"
	"github.com/Simplici0/taller/internal/migrations"
	"github.com/Simplici0/taller/internal/quote"
)

func newTestRepository(t *testing.T) (*Repository, *docstore.Store) {
	t.Helper()

	database, err := db.Open(filepath.Join(t.TempDir(), "projects.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	require.NoError(t, migrations.Up(database))

	store := docstore.New(database, docstore.WithRetries(3, time.Millisecond))
	repo := NewRepository(store)
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return fixed }
	return repo, store
}

func shirt() quote.LineItem {
	return quote.LineItem{
		ID:       "g1",
		Name:     "Camisa",
		Quantity: 10,
		MaterialItems: []quote.MaterialItem{
			{Name: "Tela", Type: quote.MaterialFabric, Quantity: 1.5, UnitCost: 20, Total: 30},
		},
		LaborCost:           quote.LaborCost{Labor: 10},
		ProfitMarginPercent: 20,
		SizePrices:          map[string]quote.SizeSelection{"S,M,L": {IsSelected: true}},
	}
}

func TestCreateAndGetProject(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	created, err := repo.CreateProject(ctx, quote.Project{
		CompanyID: "c1",
		Name:      "Uniformes",
		LineItems: []quote.LineItem{shirt()},
	})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)
	require.Equal(t, quote.ModeIndividual, created.Mode)

	got, err := repo.GetProject(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, "Uniformes", got.Name)
	require.Len(t, got.LineItems, 1)
	require.True(t, got.LineItems[0].Selected("S,M,L"))

	_, err = repo.GetProject(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCreateProjectRejectsInvalidRecords(t *testing.T) {
	repo, _ := newTestRepository(t)

	item := shirt()
	item.Quantity = 0
	_, err := repo.CreateProject(context.Background(), quote.Project{
		Name:      "Lote",
		Mode:      quote.ModeBatch,
		LineItems: []quote.LineItem{item},
	})
	require.ErrorIs(t, err, quote.ErrInvalid)
}

func TestListProjectsFiltersByCompany(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	for _, c := range []string{"c1", "c2", "c1"} {
		_, err := repo.CreateProject(ctx, quote.Project{CompanyID: c, Name: "P " + c})
		require.NoError(t, err)
	}

	mine, err := repo.ListProjects(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, mine, 2)

	all, err := repo.ListProjects(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
}

func TestUpdateLineItemsKeepsMode(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	created, err := repo.CreateProject(ctx, quote.Project{Name: "Lote", Mode: quote.ModeBatch, LineItems: []quote.LineItem{shirt()}})
	require.NoError(t, err)

	_, err = repo.UpdateLineItems(ctx, created.ID, quote.ModeIndividual, []quote.LineItem{shirt()})
	require.ErrorIs(t, err, ErrModeImmutable)

	item := shirt()
	item.ID = ""
	item.Quantity = 25
	updated, err := repo.UpdateLineItems(ctx, created.ID, "", []quote.LineItem{item})
	require.NoError(t, err)
	require.Equal(t, quote.ModeBatch, updated.Mode)
	require.NotEmpty(t, updated.LineItems[0].ID)

	got, err := repo.GetProject(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, 25, got.LineItems[0].Quantity)

	_, err = repo.UpdateLineItems(ctx, "missing", "", nil)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDecodeProjectCoercesLegacyShapes(t *testing.T) {
	repo, store := newTestRepository(t)
	ctx := context.Background()

	legacy := map[string]any{
		"name": "Antiguo",
		"lineItems": []map[string]any{{
			"id":       "g1",
			"name":     "Chaqueta",
			"quantity": 1,
			"materialItems": []map[string]any{
				{"name": "Dril", "type": "Tela", "quantity": 2, "unitCost": 10, "total": 20},
				{"name": "Botón", "type": "FABRIC", "quantity": 1, "unitCost": 5, "total": 5},
				{"name": "Hilo", "type": "Insumo", "quantity": 1, "unitCost": 1, "total": 1},
			},
		}},
	}
	require.NoError(t, store.Set(ctx, ProjectsCollection, "old", legacy))

	p, err := repo.GetProject(ctx, "old")
	require.NoError(t, err)
	require.Equal(t, "old", p.ID)
	require.Equal(t, quote.ModeIndividual, p.Mode)
	require.NotNil(t, p.LineItems[0].SizePrices)
	require.Equal(t, quote.MaterialFabric, p.LineItems[0].MaterialItems[0].Type)
	require.Equal(t, quote.MaterialFabric, p.LineItems[0].MaterialItems[1].Type)
	require.Equal(t, quote.MaterialSupply, p.LineItems[0].MaterialItems[2].Type)
	require.NoError(t, p.Validate())
}

func TestNormaliseMaterialType(t *testing.T) {
	cases := map[string]quote.MaterialType{
		"fabric":  quote.MaterialFabric,
		" Tela ":  quote.MaterialFabric,
		"TRIM":    quote.MaterialTrim,
		"avíos":   quote.MaterialTrim,
		"supply":  quote.MaterialSupply,
		"cartón":  "",
		"":        "",
	}
	for raw, want := range cases {
		require.Equal(t, want, NormaliseMaterialType(raw), raw)
	}
}

func TestFittingsLifecycle(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	_, err := repo.CreateFitting(ctx, "missing", quote.Fitting{PersonName: "Ana"})
	require.ErrorIs(t, err, ErrNotFound)

	p, err := repo.CreateProject(ctx, quote.Project{Name: "Equipo", LineItems: []quote.LineItem{shirt()}})
	require.NoError(t, err)

	f, err := repo.CreateFitting(ctx, p.ID, quote.Fitting{PersonName: "Ana", Sizes: map[string]string{"g1": "XL"}})
	require.NoError(t, err)
	require.Equal(t, quote.SourceStaff, f.Source)
	require.False(t, f.Confirmed)

	_, err = repo.CreateFitting(ctx, p.ID, quote.Fitting{PersonName: "Luis", Source: quote.SourceLink})
	require.NoError(t, err)

	list, err := repo.ListFittings(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "Ana", list[0].PersonName)
	require.NotNil(t, list[1].Sizes)

	confirmed, changed, err := repo.ConfirmFitting(ctx, p.ID, f.ID)
	require.NoError(t, err)
	require.True(t, changed)
	require.True(t, confirmed.Confirmed)
	require.NotNil(t, confirmed.ConfirmedAt)

	again, changed, err := repo.ConfirmFitting(ctx, p.ID, f.ID)
	require.NoError(t, err)
	require.False(t, changed)
	require.Equal(t, confirmed.ConfirmedAt.Unix(), again.ConfirmedAt.Unix())

	_, _, err = repo.ConfirmFitting(ctx, p.ID, "missing")
	require.ErrorIs(t, err, ErrNotFound)

	got, err := repo.GetFitting(ctx, p.ID, f.ID)
	require.NoError(t, err)
	require.True(t, got.Confirmed)
}

func TestDeleteProjectCascadesFittings(t *testing.T) {
	repo, store := newTestRepository(t)
	ctx := context.Background()

	p, err := repo.CreateProject(ctx, quote.Project{Name: "Equipo"})
	require.NoError(t, err)
	for _, name := range []string{"Ana", "Luis"} {
		_, err := repo.CreateFitting(ctx, p.ID, quote.Fitting{PersonName: name})
		require.NoError(t, err)
	}

	require.NoError(t, repo.DeleteProject(ctx, p.ID))

	_, err = repo.GetProject(ctx, p.ID)
	require.ErrorIs(t, err, ErrNotFound)
	docs, err := store.List(ctx, FittingsCollection(p.ID))
	require.NoError(t, err)
	require.Empty(t, docs)

	require.ErrorIs(t, repo.DeleteProject(ctx, p.ID), ErrNotFound)
}

func TestCompanyRoundTrip(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	_, err := repo.GetCompany(ctx, "c1")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, repo.SaveCompany(ctx, quote.Company{ID: "c1", Name: "Taller", TaxPercent: 19, Currency: "COP"}))
	c, err := repo.GetCompany(ctx, "c1")
	require.NoError(t, err)
	require.Equal(t, 19.0, c.TaxPercent)

	err = repo.SaveCompany(ctx, quote.Company{ID: "c1", Name: "Taller", TaxPercent: 150, Currency: "COP"})
	require.ErrorIs(t, err, quote.ErrInvalid)
	err = repo.SaveCompany(ctx, quote.Company{Name: "Taller", Currency: "COP"})
	require.ErrorIs(t, err, quote.ErrInvalid)
}
