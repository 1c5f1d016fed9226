// Package model provides the incremental models a worker can accumulate jobs into.
package model

import (
	"fmt"

	"distributed-lsi/internal/domain"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
)

const (
	KindLSI       = "lsi"
	KindTermCount = "termcount"
)

// Params configures a model. It is decoded from the opaque params map the
// dispatcher sends at initialize time.
type Params struct {
	Kind      string  `mapstructure:"kind" validate:"required,oneof=lsi termcount"`
	NumTerms  int     `mapstructure:"num_terms" validate:"gt=0"`
	NumTopics int     `mapstructure:"num_topics" validate:"required_if=Kind lsi,gte=0"`
	Decay     float64 `mapstructure:"decay" validate:"gt=0,lte=1"`
}

var validate = validator.New()

// ParseParams decodes and validates model params.
func ParseParams(raw domain.ModelParams) (Params, error) {
	params := Params{Kind: KindLSI, Decay: 1.0}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &params,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return Params{}, err
	}
	if err := dec.Decode(map[string]any(raw)); err != nil {
		return Params{}, fmt.Errorf("failed to decode model params: %w", err)
	}
	if err := validate.Struct(params); err != nil {
		return Params{}, fmt.Errorf("invalid model params: %w", err)
	}
	return params, nil
}

// New builds a model from its raw params. It satisfies domain.ModelFactory.
func New(raw domain.ModelParams) (domain.Model, error) {
	params, err := ParseParams(raw)
	if err != nil {
		return nil, err
	}

	switch params.Kind {
	case KindLSI:
		return NewLSI(params.NumTerms, params.NumTopics, params.Decay), nil
	case KindTermCount:
		return NewTermCount(params.NumTerms), nil
	default:
		return nil, fmt.Errorf("unknown model kind: %s", params.Kind)
	}
}

func checkTerm(termID, numTerms int) error {
	if termID < 0 || termID >= numTerms {
		return fmt.Errorf("term id %d out of range [0, %d)", termID, numTerms)
	}
	return nil
}
