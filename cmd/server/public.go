package main

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Simplici0/taller/internal/httpx"
	"github.com/Simplici0/taller/internal/quote"
	"github.com/Simplici0/taller/internal/sizes"
)

type linkProjectKey struct{}

type publicProjectView struct {
	ProjectID string          `json:"projectId"`
	Name      string          `json:"name"`
	Garments  []publicGarment `json:"garments"`
	Sizes     []string        `json:"sizes"`
}

type publicGarment struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// requireLink resolves the {token} path parameter into the project it was issued for.
func (s *server) requireLink(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.linkSigner == nil {
			s.linksDisabled(w)
			return
		}
		projectID, err := s.linkSigner.Parse(chi.URLParam(r, "token"))
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), linkProjectKey{}, projectID)))
	})
}

func (s *server) linksDisabled(w http.ResponseWriter) {
	httpx.Problem(w, http.StatusServiceUnavailable, "Unavailable", "Los enlaces públicos no están configurados.")
}

func linkProject(r *http.Request) string {
	id, _ := r.Context().Value(linkProjectKey{}).(string)
	return id
}

// handlePublicProject shows a participant what they are being sized for, without prices.
func (s *server) handlePublicProject(w http.ResponseWriter, r *http.Request) {
	p, err := s.repo.GetProject(r.Context(), linkProject(r))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	view := publicProjectView{
		ProjectID: p.ID,
		Name:      p.Name,
		Garments:  make([]publicGarment, 0, len(p.LineItems)),
		Sizes:     sizes.Ladder(),
	}
	for _, item := range p.LineItems {
		view.Garments = append(view.Garments, publicGarment{ID: item.ID, Name: item.Name})
	}
	httpx.JSON(w, http.StatusOK, view)
}

func (s *server) handlePublicCreateFitting(w http.ResponseWriter, r *http.Request) {
	s.createFitting(w, r, linkProject(r), quote.SourceLink)
}

func (s *server) handlePublicConfirmFitting(w http.ResponseWriter, r *http.Request) {
	s.confirmFitting(w, r, linkProject(r), "link")
}
