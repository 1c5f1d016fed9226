// internal/api/http/job_handler.go
package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"distributed-lsi/internal/domain"
	"distributed-lsi/internal/metrics"
	"distributed-lsi/internal/usecase"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// JobHandler serves the master's HTTP API.
type JobHandler struct {
	service  *usecase.JobService
	logger   *slog.Logger
	validate *validator.Validate
	tracer   trace.Tracer
}

func NewJobHandler(service *usecase.JobService, logger *slog.Logger) *JobHandler {
	return &JobHandler{
		service:  service,
		logger:   logger.With("component", "job-handler"),
		validate: validator.New(),
		tracer:   otel.Tracer("distributed-lsi-api"),
	}
}

// A helper struct to capture the status code
type instrumentedResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *instrumentedResponseWriter) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

// RegisterRoutes registers the API routes to the http.ServeMux.
func (h *JobHandler) RegisterRoutes(mux *http.ServeMux) {
	h.handle(mux, "POST /jobs", h.handleSubmitJob)
	h.handle(mux, "GET /jobs", h.handleQueueStats)
	h.handle(mux, "GET /workers", h.handleListWorkers)
	h.handle(mux, "GET /states", h.handleListStates)
	h.handle(mux, "GET /states/{worker_id}", h.handleGetState)
}

// handle wraps a route with a server span and the request counter.
func (h *JobHandler) handle(mux *http.ServeMux, pattern string, fn http.HandlerFunc) {
	mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		ctx, span := h.tracer.Start(r.Context(), "HTTP "+pattern, trace.WithAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.target", r.URL.Path),
		))
		defer span.End()

		iw := &instrumentedResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		fn(iw, r.WithContext(ctx))

		metrics.HttpRequestsTotal.WithLabelValues(r.Pattern, r.Method, strconv.Itoa(iw.statusCode)).Inc()

		span.SetAttributes(attribute.Int("http.status_code", iw.statusCode))
		if iw.statusCode >= 500 {
			span.SetStatus(codes.Error, "Server Error")
		}
	})
}

func (h *JobHandler) handleSubmitJob(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "handler.SubmitJob")
	defer span.End()

	var req SubmitJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		span.SetStatus(codes.Error, "Failed to decode request body")
		span.RecordError(err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.validate.Struct(req); err != nil {
		span.SetStatus(codes.Error, "Validation failed")
		span.RecordError(err)
		var details []string
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			for _, fe := range validationErrors {
				details = append(details, "Field '"+fe.Namespace()+"' failed on the '"+fe.Tag()+"' tag.")
			}
		}
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":   "Validation failed",
			"details": details,
		})
		return
	}

	job := req.ToDomainJob()
	if err := h.service.Submit(ctx, job); err != nil {
		span.SetStatus(codes.Error, "Failed to submit job")
		span.RecordError(err)
		if errors.Is(err, domain.ErrInvalidArgument) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if errors.Is(err, domain.ErrNotLeader) {
			http.Error(w, "Not the leader", http.StatusServiceUnavailable)
			return
		}
		h.logger.Error("error submitting job", "error", err)
		http.Error(w, "Job queue unavailable", http.StatusServiceUnavailable)
		return
	}
	span.SetAttributes(attribute.String("job.id", job.ID))

	writeJSON(w, http.StatusAccepted, SubmitJobResponse{ID: job.ID, Documents: len(job.Documents)})
}

func (h *JobHandler) handleQueueStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.QueueStats(r.Context()))
}

func (h *JobHandler) handleListWorkers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.Workers(r.Context()))
}

func (h *JobHandler) handleListStates(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "handler.ListStates")
	defer span.End()

	records, err := h.service.ListStates(ctx)
	if err != nil {
		span.SetStatus(codes.Error, "Failed to list states from service")
		span.RecordError(err)
		h.logger.Error("error listing states", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	resp := make([]StateResponse, 0, len(records))
	for _, rec := range records {
		resp = append(resp, toStateResponse(rec))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *JobHandler) handleGetState(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "handler.GetState")
	defer span.End()
	workerID := r.PathValue("worker_id")
	span.SetAttributes(attribute.String("worker.id", workerID))

	rec, err := h.service.GetState(ctx, workerID)
	if err != nil {
		span.SetStatus(codes.Error, "Failed to get state from service")
		span.RecordError(err)
		if errors.Is(err, domain.ErrStateNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		h.logger.Error("error getting state", "worker_id", workerID, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, toStateResponse(rec))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
