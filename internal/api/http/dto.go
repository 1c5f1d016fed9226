package http

import (
	"encoding/json"
	"time"

	"distributed-lsi/internal/domain"
)

// TermWeightRequest is one entry of a sparse document.
type TermWeightRequest struct {
	TermID int     `json:"term_id" validate:"gte=0"`
	Weight float64 `json:"weight"`
}

// SubmitJobRequest is the Data Transfer Object for submitting a batch of documents.
type SubmitJobRequest struct {
	ID        string                `json:"id,omitempty" validate:"omitempty,max=128,printascii"`
	Documents [][]TermWeightRequest `json:"documents" validate:"required,min=1,dive,dive"`
}

// ToDomainJob converts a SubmitJobRequest DTO to a domain.Job object.
func (r *SubmitJobRequest) ToDomainJob() *domain.Job {
	docs := make([]domain.Document, len(r.Documents))
	for i, doc := range r.Documents {
		docs[i] = make(domain.Document, len(doc))
		for j, tw := range doc {
			docs[i][j] = domain.TermWeight{TermID: tw.TermID, Weight: tw.Weight}
		}
	}
	return &domain.Job{ID: r.ID, Documents: docs}
}

// SubmitJobResponse acknowledges a queued job.
type SubmitJobResponse struct {
	ID        string `json:"id"`
	Documents int    `json:"documents"`
}

// StateResponse is a harvested worker state.
type StateResponse struct {
	WorkerID    string          `json:"worker_id"`
	JobsDone    int64           `json:"jobs_done"`
	Kind        string          `json:"kind"`
	Snapshot    json.RawMessage `json:"snapshot"`
	HarvestedAt time.Time       `json:"harvested_at"`
}

func toStateResponse(rec *domain.StateRecord) StateResponse {
	return StateResponse{
		WorkerID:    rec.WorkerID,
		JobsDone:    rec.JobsDone,
		Kind:        rec.Kind,
		Snapshot:    rec.Snapshot,
		HarvestedAt: rec.HarvestedAt,
	}
}
