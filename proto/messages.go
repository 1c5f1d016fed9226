// proto/messages.go
//
// Request and response payloads travel as google.protobuf.Struct values whose
// fields mirror the JSON encoding of the types below.
package proto

import (
	"encoding/json"
	"errors"
	"fmt"

	"distributed-lsi/internal/domain"

	"google.golang.org/protobuf/encoding/protojson"
	structpb "google.golang.org/protobuf/types/known/structpb"
)

// InitializeRequest is the payload of Worker.Initialize.
type InitializeRequest struct {
	WorkerID       string             `json:"worker_id"`
	DispatcherAddr string             `json:"dispatcher_addr"`
	Model          domain.ModelParams `json:"model"`
}

// State is a worker state as seen by the dispatcher. The snapshot is left in
// its JSON form because its layout depends on Kind.
type State struct {
	WorkerID string          `json:"worker_id"`
	JobsDone int64           `json:"jobs_done"`
	Kind     string          `json:"kind"`
	Snapshot json.RawMessage `json:"snapshot"`
	// DispatcherAddr is the dispatcher the worker currently pulls jobs from.
	DispatcherAddr string `json:"dispatcher_addr,omitempty"`
}

func EncodeInitializeRequest(req *InitializeRequest) (*structpb.Struct, error) {
	return toStruct(req)
}

func DecodeInitializeRequest(s *structpb.Struct) (*InitializeRequest, error) {
	var req InitializeRequest
	if err := fromStruct(s, &req); err != nil {
		return nil, err
	}
	return &req, nil
}

func EncodeJob(job *domain.Job) (*structpb.Struct, error) {
	return toStruct(job)
}

func DecodeJob(s *structpb.Struct) (*domain.Job, error) {
	var job domain.Job
	if err := fromStruct(s, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// EncodeState encodes a worker state together with the address of the
// dispatcher the worker is bound to.
func EncodeState(state *domain.State, dispatcherAddr string) (*structpb.Struct, error) {
	if state.Snapshot == nil {
		return nil, errors.New("state has no snapshot")
	}
	return toStruct(&struct {
		WorkerID       string          `json:"worker_id"`
		JobsDone       int64           `json:"jobs_done"`
		Kind           string          `json:"kind"`
		Snapshot       domain.Snapshot `json:"snapshot"`
		DispatcherAddr string          `json:"dispatcher_addr,omitempty"`
	}{
		WorkerID:       state.WorkerID,
		JobsDone:       state.JobsDone,
		Kind:           state.Snapshot.Kind(),
		Snapshot:       state.Snapshot,
		DispatcherAddr: dispatcherAddr,
	})
}

func DecodeState(s *structpb.Struct) (*State, error) {
	var state State
	if err := fromStruct(s, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

func toStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %T: %w", v, err)
	}
	s := &structpb.Struct{}
	if err := protojson.Unmarshal(raw, s); err != nil {
		return nil, fmt.Errorf("failed to convert %T to struct: %w", v, err)
	}
	return s, nil
}

func fromStruct(s *structpb.Struct, v any) error {
	if s == nil {
		return errors.New("empty message")
	}
	raw, err := protojson.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal struct: %w", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("failed to decode %T: %w", v, err)
	}
	return nil
}
