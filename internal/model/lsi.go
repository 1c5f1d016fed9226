package model

import (
	"errors"
	"fmt"

	"distributed-lsi/internal/domain"

	"gonum.org/v1/gonum/mat"
)

// LSI keeps a truncated left singular decomposition (U, S) of every document
// it has seen. Each job is decomposed on its own and merged into the current
// projection, so the corpus is never decomposed as a whole.
type LSI struct {
	numTerms  int
	numTopics int
	decay     float64

	u         *mat.Dense // numTerms x len(s); nil until the first non-empty job
	s         []float64
	documents int64
}

// Projection is the exported state of an LSI model.
type Projection struct {
	NumTerms  int       `json:"num_terms"`
	NumTopics int       `json:"num_topics"`
	U         []float64 `json:"u"` // row-major, NumTerms x len(S)
	S         []float64 `json:"s"`
	Documents int64     `json:"documents"`
}

func (p *Projection) Kind() string { return KindLSI }

// Basis returns U as a matrix, or nil for an empty projection.
func (p *Projection) Basis() *mat.Dense {
	if len(p.S) == 0 {
		return nil
	}
	return mat.NewDense(p.NumTerms, len(p.S), p.U)
}

// NewLSI creates an empty model. decay scales the existing projection before
// each merge; 1 weighs old and new documents equally.
func NewLSI(numTerms, numTopics int, decay float64) *LSI {
	return &LSI{
		numTerms:  numTerms,
		numTopics: numTopics,
		decay:     decay,
	}
}

func (m *LSI) Accumulate(job *domain.Job) error {
	if len(job.Documents) == 0 {
		return nil
	}

	a := mat.NewDense(m.numTerms, len(job.Documents), nil)
	for j, doc := range job.Documents {
		for _, tw := range doc {
			if err := checkTerm(tw.TermID, m.numTerms); err != nil {
				return fmt.Errorf("document %d: %w", j, err)
			}
			a.Set(tw.TermID, j, a.At(tw.TermID, j)+tw.Weight)
		}
	}

	u, s, err := decompose(a, m.numTopics)
	if err != nil {
		return err
	}

	if m.u != nil {
		u, s, err = m.merge(u, s)
		if err != nil {
			return err
		}
	}

	m.u, m.s = u, s
	m.documents += int64(len(job.Documents))
	return nil
}

// merge combines the current projection with another one by decomposing
// [decay*U1*S1 | U2*S2].
func (m *LSI) merge(u2 *mat.Dense, s2 []float64) (*mat.Dense, []float64, error) {
	k1, k2 := len(m.s), len(s2)
	combined := mat.NewDense(m.numTerms, k1+k2, nil)
	for i := 0; i < m.numTerms; i++ {
		for j := 0; j < k1; j++ {
			combined.Set(i, j, m.decay*m.u.At(i, j)*m.s[j])
		}
		for j := 0; j < k2; j++ {
			combined.Set(i, k1+j, u2.At(i, j)*s2[j])
		}
	}
	return decompose(combined, m.numTopics)
}

func (m *LSI) Snapshot() domain.Snapshot {
	p := &Projection{
		NumTerms:  m.numTerms,
		NumTopics: m.numTopics,
		Documents: m.documents,
	}
	if m.u != nil {
		p.U = mat.DenseCopyOf(m.u).RawMatrix().Data
		p.S = append([]float64(nil), m.s...)
	}
	return p
}

// decompose returns the leading k left singular vectors and values of a.
func decompose(a *mat.Dense, k int) (*mat.Dense, []float64, error) {
	var svd mat.SVD
	if ok := svd.Factorize(a, mat.SVDThin); !ok {
		return nil, nil, errors.New("svd factorization failed")
	}

	values := svd.Values(nil)
	var u mat.Dense
	svd.UTo(&u)

	n := len(values)
	if k < n {
		n = k
	}
	rows, _ := u.Dims()
	return mat.DenseCopyOf(u.Slice(0, rows, 0, n)), values[:n], nil
}
