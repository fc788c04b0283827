package handlers

import (
	"net/http"
)

func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	providers := a.Service.Providers()
	if providers == nil {
		providers = []string{}
	}
	status := "ok"
	if len(providers) == 0 {
		status = "degraded"
	}
	a.json(w, http.StatusOK, map[string]any{"status": status, "providers": providers})
}
