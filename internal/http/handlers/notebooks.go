package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"notebook/internal/domain"
	"notebook/internal/generation"
	"notebook/internal/middleware"
)

type featureReq struct {
	Text             string            `json:"text"`
	Resources        []domain.Resource `json:"resources"`
	Language         string            `json:"language"`
	Customization    map[string]any    `json:"customization"`
	IncludeCitations bool              `json:"include_citations"`
}

// NotebookFeature runs one of the notebook helpers (summary, faq, ...).
func (a *App) NotebookFeature(w http.ResponseWriter, r *http.Request) {
	var req featureReq
	if !a.decode(w, r, &req) {
		return
	}
	lang := strings.TrimSpace(req.Language)
	if lang == "" {
		lang = middleware.LocaleFromContext(r.Context())
	}
	out, err := a.Service.Feature(r.Context(), chi.URLParam(r, "feature"), generation.FeatureInput{
		Text:             req.Text,
		Resources:        req.Resources,
		Language:         lang,
		Customization:    req.Customization,
		IncludeCitations: req.IncludeCitations,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.outcome(w, out)
}

type modifyReq struct {
	AudioURL      string         `json:"audio_url"`
	Instructions  string         `json:"instructions"`
	Customization map[string]any `json:"customization"`
}

// ModifyPodcast submits a podcast rework and waits with the long profile.
func (a *App) ModifyPodcast(w http.ResponseWriter, r *http.Request) {
	var req modifyReq
	if !a.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.AudioURL) == "" || strings.TrimSpace(req.Instructions) == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "audio_url and instructions required")
		return
	}
	out, err := a.Service.ModifyPodcast(r.Context(), req.AudioURL, req.Instructions, req.Customization)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.outcome(w, out)
}
