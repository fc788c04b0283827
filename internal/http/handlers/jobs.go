package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"notebook/internal/domain"
	"notebook/pkg/zip"
)

const maxExportJobs = 50

// SubmitJob submits without waiting and answers 202 with the pending job.
func (a *App) SubmitJob(w http.ResponseWriter, r *http.Request) {
	var req domain.GenerationRequest
	if !a.decode(w, r, &req) {
		return
	}
	job, err := a.Service.Submit(r.Context(), withLocale(r.Context(), req))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/jobs/"+job.ID)
	a.json(w, http.StatusAccepted, job)
}

// JobStatus performs a single status query.
func (a *App) JobStatus(w http.ResponseWriter, r *http.Request) {
	job, err := a.Service.Status(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, job)
}

// WaitJob resumes polling an existing job. The interactive profile is the
// default so the request stays within client timeouts.
func (a *App) WaitJob(w http.ResponseWriter, r *http.Request) {
	cfg, ok := a.profile(r, a.Interactive)
	if !ok {
		a.error(w, http.StatusBadRequest, "bad_request", "profile must be interactive or long")
		return
	}
	out, err := a.Service.Resume(r.Context(), chi.URLParam(r, "id"), cfg)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.outcome(w, out)
}

type exportReq struct {
	IDs []string `json:"ids"`
}

// ExportJobs bundles the content of completed jobs into a zip archive. Only
// stored records are read. Every id gets a manifest row, with the error code
// in the status column when it could not be exported.
func (a *App) ExportJobs(w http.ResponseWriter, r *http.Request) {
	var req exportReq
	if !a.decode(w, r, &req) {
		return
	}
	if len(req.IDs) == 0 {
		a.error(w, http.StatusBadRequest, "bad_request", "ids required")
		return
	}
	if len(req.IDs) > maxExportJobs {
		a.error(w, http.StatusBadRequest, "bad_request", fmt.Sprintf("at most %d ids per export", maxExportJobs))
		return
	}

	ctx := r.Context()
	var (
		entries  []zip.Entry
		manifest strings.Builder
		found    int
	)
	manifest.WriteString("id\toutput_type\tstatus\tfile\n")
	for _, id := range req.IDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		job, err := a.Service.Lookup(ctx, id)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			status := "not_found"
			if !errors.Is(err, domain.ErrNotFound) {
				status = "error:" + errorCode(err)
				a.Logger.Warn().Err(err).Str("job_id", id).Msg("export: job lookup failed")
			}
			fmt.Fprintf(&manifest, "%s\t\t%s\t\n", id, status)
			continue
		}
		found++
		name, data := exportFile(ctx, a.Service, job)
		if data != nil {
			entries = append(entries, zip.Entry{Name: name, Modified: job.SubmittedAt, Data: data})
		}
		fmt.Fprintf(&manifest, "%s\t%s\t%s\t%s\n", job.ID, job.OutputType, job.Status, name)
	}
	if found == 0 {
		a.error(w, http.StatusNotFound, "not_found", "no jobs found")
		return
	}
	entries = append(entries, zip.Entry{Name: "manifest.tsv", Modified: time.Now(), Data: []byte(manifest.String())})

	data, err := zip.Archive(entries)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="notebook-export.zip"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// exportFile is the archived file for a completed job: its text, or a link
// file for audio-only results. A nil body means nothing to archive.
func exportFile(ctx context.Context, svc Generator, job *domain.Job) (string, []byte) {
	if job.Status != domain.JobStatusCompleted || job.Payload == nil {
		return "", nil
	}
	if data := svc.Content(ctx, job); len(data) > 0 {
		return fmt.Sprintf("%s/%s.md", job.OutputType, job.ID), data
	}
	if job.Payload.AudioURL != "" {
		return fmt.Sprintf("%s/%s.url", job.OutputType, job.ID), []byte("[InternetShortcut]\nURL=" + job.Payload.AudioURL + "\n")
	}
	return "", nil
}
