package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Simplici0/taller/internal/authz"
	"github.com/Simplici0/taller/internal/consumption"
	"github.com/Simplici0/taller/internal/docstore"
	"github.com/Simplici0/taller/internal/httpx"
	"github.com/Simplici0/taller/internal/links"
	"github.com/Simplici0/taller/internal/pricing"
	"github.com/Simplici0/taller/internal/projects"
	"github.com/Simplici0/taller/internal/quote"
	"github.com/Simplici0/taller/internal/report"
)

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type sessionResponse struct {
	Email        string             `json:"email"`
	Role         authz.Role         `json:"role"`
	Capabilities []authz.Capability `json:"capabilities"`
}

type previewRequest struct {
	QuoteMode  quote.Mode       `json:"quoteMode" validate:"omitempty,oneof=individual batch"`
	LineItems  []quote.LineItem `json:"lineItems" validate:"required,min=1"`
	TaxPercent *float64         `json:"taxPercent" validate:"omitempty,gte=0,lte=100"`
}

type createProjectRequest struct {
	Name       string           `json:"name" validate:"required"`
	ClientName string           `json:"clientName"`
	QuoteMode  quote.Mode       `json:"quoteMode" validate:"omitempty,oneof=individual batch"`
	LineItems  []quote.LineItem `json:"lineItems"`
}

type updateLineItemsRequest struct {
	QuoteMode quote.Mode       `json:"quoteMode" validate:"omitempty,oneof=individual batch"`
	LineItems []quote.LineItem `json:"lineItems"`
}

type fittingRequest struct {
	PersonName string            `json:"personName" validate:"required"`
	Sizes      map[string]string `json:"sizes"`
}

type confirmResponse struct {
	Fitting                quote.Fitting `json:"fitting"`
	RecalculationTriggered bool          `json:"recalculationTriggered"`
}

type linkResponse struct {
	Token     string    `json:"token"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (s *server) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(w, r, target); err != nil {
		s.respondError(w, r, err)
		return false
	}
	if err := quote.Validator().Struct(target); err != nil {
		s.respondError(w, r, fmt.Errorf("%w: %v", quote.ErrInvalid, err))
		return false
	}
	return true
}

// respondError maps domain errors to problem responses.
func (s *server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, httpx.ErrBadRequest),
		errors.Is(err, quote.ErrInvalid),
		errors.Is(err, pricing.ErrInvalidInput):
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
	case errors.Is(err, projects.ErrNotFound),
		errors.Is(err, consumption.ErrProjectNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, projects.ErrModeImmutable):
		httpx.Problem(w, http.StatusConflict, "Conflict", "La modalidad de la cotización no se puede cambiar.")
	case errors.Is(err, docstore.ErrConflict):
		httpx.Problem(w, http.StatusConflict, "Conflict", "El registro cambió mientras se guardaba. Intenta de nuevo.")
	case errors.Is(err, links.ErrInvalidLink):
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "El enlace no es válido o ya venció.")
	default:
		s.logger.Error("request failed",
			slog.String("path", r.URL.Path),
			slog.Any("error", err),
		)
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func (s *server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if err := s.db.PingContext(r.Context()); err != nil {
		s.logger.Warn("health check failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusServiceUnavailable, "Unavailable", "database")
		return
	}
	if s.redisCheck != nil {
		if err := s.redisCheck(r.Context()); err != nil {
			s.logger.Warn("health check failed", slog.Any("error", err))
			httpx.Problem(w, http.StatusServiceUnavailable, "Unavailable", "redis")
			return
		}
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !s.decode(w, r, &req) {
		return
	}

	valid, err := s.auth.validateCredentials(r.Context(), req.Email, req.Password)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if !valid {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "Credenciales inválidas. Intenta de nuevo.")
		return
	}

	s.auth.setSessionCookie(w, req.Email, s.secureCookies)
	httpx.JSON(w, http.StatusOK, sessionResponse{
		Email:        req.Email,
		Role:         s.policy.RoleFor(req.Email),
		Capabilities: s.policy.Capabilities(req.Email),
	})
}

func (s *server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.auth.clearSessionCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

// company returns the workshop profile, falling back to configured defaults until one is saved.
func (s *server) company(ctx context.Context) (quote.Company, error) {
	c, err := s.repo.GetCompany(ctx, s.fallbackCompany.ID)
	if errors.Is(err, projects.ErrNotFound) {
		return s.fallbackCompany, nil
	}
	return c, err
}

func (s *server) handleGetCompany(w http.ResponseWriter, r *http.Request) {
	c, err := s.company(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, c)
}

func (s *server) handlePutCompany(w http.ResponseWriter, r *http.Request) {
	var c quote.Company
	if !s.decode(w, r, &c) {
		return
	}
	c.ID = s.fallbackCompany.ID
	if err := s.repo.SaveCompany(r.Context(), c); err != nil {
		s.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, c)
}

func (s *server) handlePricingPreview(w http.ResponseWriter, r *http.Request) {
	var req previewRequest
	if !s.decode(w, r, &req) {
		return
	}

	taxPercent, err := s.taxPercent(r.Context(), req.TaxPercent)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	mode := req.QuoteMode
	if mode == "" {
		mode = quote.ModeIndividual
	}
	totals, err := pricing.ComputeProjectTotals(quote.Project{Name: "preview", Mode: mode, LineItems: req.LineItems}, taxPercent)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, totals)
}

func (s *server) taxPercent(ctx context.Context, override *float64) (float64, error) {
	if override != nil {
		return *override, nil
	}
	c, err := s.company(ctx)
	if err != nil {
		return 0, err
	}
	return c.TaxPercent, nil
}

func (s *server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	list, err := s.repo.ListProjects(r.Context(), s.fallbackCompany.ID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, list)
}

func (s *server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req createProjectRequest
	if !s.decode(w, r, &req) {
		return
	}
	p, err := s.repo.CreateProject(r.Context(), quote.Project{
		CompanyID:  s.fallbackCompany.ID,
		Name:       req.Name,
		ClientName: req.ClientName,
		Mode:       req.QuoteMode,
		LineItems:  req.LineItems,
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.logger.Info("project created", slog.String("project_id", p.ID), slog.String("email", currentUser(r)))
	httpx.JSON(w, http.StatusCreated, p)
}

func (s *server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	p, err := s.repo.GetProject(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (s *server) handleUpdateLineItems(w http.ResponseWriter, r *http.Request) {
	var req updateLineItemsRequest
	if !s.decode(w, r, &req) {
		return
	}
	p, err := s.repo.UpdateLineItems(r.Context(), chi.URLParam(r, "id"), req.QuoteMode, req.LineItems)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (s *server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.repo.DeleteProject(r.Context(), id); err != nil {
		s.respondError(w, r, err)
		return
	}
	s.logger.Info("project deleted", slog.String("project_id", id), slog.String("email", currentUser(r)))
	w.WriteHeader(http.StatusNoContent)
}

// pricedProject loads a project together with the totals at the current company tax rate.
func (s *server) pricedProject(ctx context.Context, id string) (quote.Project, quote.Company, pricing.Totals, error) {
	p, err := s.repo.GetProject(ctx, id)
	if err != nil {
		return quote.Project{}, quote.Company{}, pricing.Totals{}, err
	}
	c, err := s.company(ctx)
	if err != nil {
		return quote.Project{}, quote.Company{}, pricing.Totals{}, err
	}
	totals, err := pricing.ComputeProjectTotals(p, c.TaxPercent)
	if err != nil {
		return quote.Project{}, quote.Company{}, pricing.Totals{}, err
	}
	return p, c, totals, nil
}

func (s *server) handleProjectPricing(w http.ResponseWriter, r *http.Request) {
	_, _, totals, err := s.pricedProject(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, totals)
}

func (s *server) handleQuoteText(w http.ResponseWriter, r *http.Request) {
	p, c, totals, err := s.pricedProject(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if err := report.QuoteText(w, p, c, totals); err != nil {
		s.logger.Warn("write quote text", slog.String("project_id", p.ID), slog.Any("error", err))
	}
}

func (s *server) handleFittingsWorkbook(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	p, err := s.repo.GetProject(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	fittings, err := s.repo.ListFittings(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="pruebas-`+id+`.xlsx"`)
	if err := report.WriteFittingsWorkbook(w, p, fittings); err != nil {
		s.logger.Warn("write fittings workbook", slog.String("project_id", id), slog.Any("error", err))
	}
}

func (s *server) handleListFittings(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.repo.GetProject(r.Context(), id); err != nil {
		s.respondError(w, r, err)
		return
	}
	fittings, err := s.repo.ListFittings(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, fittings)
}

func (s *server) handleCreateFitting(w http.ResponseWriter, r *http.Request) {
	s.createFitting(w, r, chi.URLParam(r, "id"), quote.SourceStaff)
}

func (s *server) createFitting(w http.ResponseWriter, r *http.Request, projectID string, source quote.FittingSource) {
	var req fittingRequest
	if !s.decode(w, r, &req) {
		return
	}
	f, err := s.repo.CreateFitting(r.Context(), projectID, quote.Fitting{
		PersonName: req.PersonName,
		Sizes:      req.Sizes,
		Source:     source,
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, f)
}

func (s *server) handleConfirmFitting(w http.ResponseWriter, r *http.Request) {
	s.confirmFitting(w, r, chi.URLParam(r, "id"), "confirm")
}

// confirmFitting confirms a fitting and, only when it was not confirmed before, fires a
// consumption recalculation. The response never waits for the recalculation.
func (s *server) confirmFitting(w http.ResponseWriter, r *http.Request, projectID, origin string) {
	fittingID := chi.URLParam(r, "fittingID")
	f, changed, err := s.repo.ConfirmFitting(r.Context(), projectID, fittingID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if changed {
		s.metrics.ObserveTrigger(origin)
		s.trigger.TriggerRecalculation(r.Context(), projectID, origin)
	}
	httpx.JSON(w, http.StatusOK, confirmResponse{Fitting: f, RecalculationTriggered: changed})
}

func (s *server) handleRecalculate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.metrics.ObserveTrigger("manual")
	result, err := s.recalc.Recalculate(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (s *server) handleIssueLink(w http.ResponseWriter, r *http.Request) {
	if s.linkSigner == nil {
		s.linksDisabled(w)
		return
	}
	id := chi.URLParam(r, "id")
	if _, err := s.repo.GetProject(r.Context(), id); err != nil {
		s.respondError(w, r, err)
		return
	}
	token, expires, err := s.linkSigner.Issue(id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, linkResponse{
		Token:     token,
		URL:       "/public/links/" + token,
		ExpiresAt: expires,
	})
}
