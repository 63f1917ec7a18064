// Package http exposes the retrieval pipeline over a chi router: one-shot
// synchronous retrievals, asynchronous jobs and health endpoints.
package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	apierrors "github.com/ZackGrogan/SDEA/internal/errors"
	"github.com/ZackGrogan/SDEA/internal/infrastructure"
	"github.com/ZackGrogan/SDEA/internal/pipeline"
	apiv1 "github.com/ZackGrogan/SDEA/pkg/contracts/api/v1"
)

// Runner is the slice of pipeline.Pipeline the handler needs.
type Runner interface {
	Run(ctx context.Context, req pipeline.RunRequest) (*pipeline.Result, error)
}

// RetrieveHandler serves synchronous and job-based retrievals.
type RetrieveHandler struct {
	runner   Runner
	jobs     *pipeline.JobManager
	validate *validator.Validate
	logger   *slog.Logger
}

// NewRetrieveHandler creates the handler.
func NewRetrieveHandler(runner Runner, jobs *pipeline.JobManager, logger *slog.Logger) *RetrieveHandler {
	return &RetrieveHandler{
		runner:   runner,
		jobs:     jobs,
		validate: validator.New(),
		logger:   logger.With(slog.String("handler", "retrieve")),
	}
}

// Retrieve handles POST /api/v1/retrieve. The batch runs inside the
// request; use jobs for long-running batches.
func (h *RetrieveHandler) Retrieve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, apiErr := h.decode(r)
	if apiErr != nil {
		render.Render(w, r, apiErr.WithTraceID(infrastructure.GetTraceID(ctx)))
		return
	}

	result, err := h.runner.Run(ctx, toRunRequest(req))
	if err != nil {
		h.logger.ErrorContext(ctx, "retrieve_failed", slog.String("error", err.Error()))
		if errors.Is(err, pipeline.ErrInvalidRequest) {
			render.Render(w, r, apierrors.InvalidRequestWithError(err).WithTraceID(infrastructure.GetTraceID(ctx)))
			return
		}
		render.Render(w, r, apierrors.RunFailedError(err).WithTraceID(infrastructure.GetTraceID(ctx)))
		return
	}

	render.JSON(w, r, toResponse(result))
}

// SubmitJob handles POST /api/v1/jobs.
func (h *RetrieveHandler) SubmitJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, apiErr := h.decode(r)
	if apiErr != nil {
		render.Render(w, r, apiErr.WithTraceID(infrastructure.GetTraceID(ctx)))
		return
	}

	id, err := h.jobs.Submit(ctx, toRunRequest(req))
	if err != nil {
		render.Render(w, r, apierrors.InvalidRequestWithError(err).WithTraceID(infrastructure.GetTraceID(ctx)))
		return
	}

	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, apiv1.JobSubmitResponse{JobID: id, Status: string(pipeline.JobPending)})
}

// JobStatus handles GET /api/v1/jobs/{jobID}.
func (h *RetrieveHandler) JobStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "jobID")

	job, err := h.jobs.Get(id)
	if err != nil {
		render.Render(w, r, apierrors.ErrJobNotFound.WithTraceID(infrastructure.GetTraceID(ctx)))
		return
	}

	resp := apiv1.JobStatusResponse{
		JobID:  job.ID,
		Status: string(job.Status),
		Error:  job.Err,
	}
	if !job.StartedAt.IsZero() {
		resp.StartedAt = job.StartedAt.Format(timeLayout)
	}
	if !job.EndedAt.IsZero() {
		resp.EndedAt = job.EndedAt.Format(timeLayout)
	}
	if job.Result != nil {
		body := toResponse(job.Result)
		resp.Result = &body
	}
	render.JSON(w, r, resp)
}

const timeLayout = "2006-01-02T15:04:05Z07:00"

func (h *RetrieveHandler) decode(r *http.Request) (apiv1.RetrieveRequest, *apierrors.APIError) {
	var req apiv1.RetrieveRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		return req, apierrors.InvalidRequestWithError(err)
	}
	if err := h.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]apierrors.ValidationError, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, apierrors.ValidationError{
					Field:   fe.Field(),
					Message: fe.Tag(),
				})
			}
			return req, apierrors.ValidationFailed(fields)
		}
		return req, apierrors.InvalidRequestWithError(err)
	}
	return req, nil
}

func toRunRequest(req apiv1.RetrieveRequest) pipeline.RunRequest {
	return pipeline.RunRequest{
		IssuerIDs: req.IssuerIDs,
		StartYear: req.StartYear,
		EndYear:   req.EndYear,
	}
}

func toResponse(result *pipeline.Result) apiv1.RetrieveResponse {
	analysis := result.ExitAnalysis
	return apiv1.RetrieveResponse{
		Filings:         result.Filings,
		ThresholdEvents: result.ThresholdEvents,
		PartialFailures: result.PartialFailures,
		ExitAnalysis:    &analysis,
	}
}
