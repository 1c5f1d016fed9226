package model

import (
	"testing"

	"distributed-lsi/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseParams(t *testing.T) {
	tests := []struct {
		name    string
		raw     domain.ModelParams
		want    Params
		wantErr bool
	}{
		{
			name: "lsi with defaults",
			raw:  domain.ModelParams{"num_terms": 10, "num_topics": 2},
			want: Params{Kind: KindLSI, NumTerms: 10, NumTopics: 2, Decay: 1.0},
		},
		{
			name: "json numbers",
			raw:  domain.ModelParams{"kind": "lsi", "num_terms": 10.0, "num_topics": 3.0, "decay": 0.5},
			want: Params{Kind: KindLSI, NumTerms: 10, NumTopics: 3, Decay: 0.5},
		},
		{
			name: "termcount without topics",
			raw:  domain.ModelParams{"kind": "termcount", "num_terms": 4},
			want: Params{Kind: KindTermCount, NumTerms: 4, Decay: 1.0},
		},
		{
			name:    "lsi without topics",
			raw:     domain.ModelParams{"num_terms": 10},
			wantErr: true,
		},
		{
			name:    "unknown kind",
			raw:     domain.ModelParams{"kind": "lda", "num_terms": 10},
			wantErr: true,
		},
		{
			name:    "unknown key",
			raw:     domain.ModelParams{"num_terms": 10, "num_topics": 2, "chunksize": 100},
			wantErr: true,
		},
		{
			name:    "decay out of range",
			raw:     domain.ModelParams{"num_terms": 10, "num_topics": 2, "decay": 1.5},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseParams(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNew(t *testing.T) {
	m, err := New(domain.ModelParams{"kind": "termcount", "num_terms": 3})
	require.NoError(t, err)
	assert.IsType(t, &TermCount{}, m)

	m, err = New(domain.ModelParams{"num_terms": 3, "num_topics": 2})
	require.NoError(t, err)
	assert.IsType(t, &LSI{}, m)

	_, err = New(domain.ModelParams{})
	assert.Error(t, err)
}

func TestTermCount(t *testing.T) {
	m := NewTermCount(2)

	require.NoError(t, m.Accumulate(&domain.Job{ID: "a", Documents: []domain.Document{
		{{TermID: 0, Weight: 1}, {TermID: 1, Weight: 2}},
	}}))
	before := m.Snapshot()

	require.NoError(t, m.Accumulate(&domain.Job{ID: "b", Documents: []domain.Document{
		{{TermID: 1, Weight: 3}},
		{{TermID: 0, Weight: 1}},
	}}))

	assert.Equal(t, &TermCountSnapshot{Totals: []float64{1, 2}, Documents: 1}, before)
	assert.Equal(t, &TermCountSnapshot{Totals: []float64{2, 5}, Documents: 3}, m.Snapshot())

	err := m.Accumulate(&domain.Job{ID: "c", Documents: []domain.Document{
		{{TermID: 0, Weight: 1}},
		{{TermID: 2, Weight: 1}},
	}})
	require.Error(t, err)
	assert.Equal(t, &TermCountSnapshot{Totals: []float64{2, 5}, Documents: 3}, m.Snapshot())
}
