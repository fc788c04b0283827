package handlers

import (
	"fmt"
	"net/http"

	"notebook/internal/domain"
)

// Generate runs the provider chain with the interactive profile. A timed out
// wait answers 202 with the job so the caller can check back later.
func (a *App) Generate(w http.ResponseWriter, r *http.Request) {
	var req domain.GenerationRequest
	if !a.decode(w, r, &req) {
		return
	}
	out, err := a.Service.Generate(r.Context(), withLocale(r.Context(), req))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.outcome(w, out)
}

type batchReq struct {
	Requests []domain.GenerationRequest `json:"requests"`
}

type batchItemResp struct {
	Outcome *domain.Outcome `json:"outcome,omitempty"`
	Error   *errorBody      `json:"error,omitempty"`
}

// GenerateBatch runs independent generations concurrently. Failures are
// reported per item; the response is 200 unless the payload is invalid.
func (a *App) GenerateBatch(w http.ResponseWriter, r *http.Request) {
	var req batchReq
	if !a.decode(w, r, &req) {
		return
	}
	if len(req.Requests) == 0 {
		a.error(w, http.StatusBadRequest, "bad_request", "requests required")
		return
	}
	if a.MaxBatch > 0 && len(req.Requests) > a.MaxBatch {
		a.error(w, http.StatusBadRequest, "bad_request", fmt.Sprintf("at most %d requests per batch", a.MaxBatch))
		return
	}
	for i := range req.Requests {
		req.Requests[i] = withLocale(r.Context(), req.Requests[i])
	}

	items := a.Service.GenerateMany(r.Context(), req.Requests)
	resp := make([]batchItemResp, len(items))
	for i, item := range items {
		if item.Err != nil {
			resp[i].Error = &errorBody{Code: errorCode(item.Err), Message: item.Err.Error()}
			continue
		}
		out := item.Outcome
		resp[i].Outcome = &out
	}
	a.json(w, http.StatusOK, map[string]any{"items": resp})
}
