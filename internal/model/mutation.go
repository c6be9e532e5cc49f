package model

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Document is the stored form of a status record: top-level JSON fields by name.
type Document map[string]any

// Clone copies the top level of the document.
func (d Document) Clone() Document {
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// Decode converts the document into the typed record for domain dom.
func (d Document) Decode(dom Domain) (Record, error) {
	raw, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("encode %s document: %w", dom, err)
	}
	return DecodeRecord(dom, raw)
}

// MeanUpdate folds one sample into the running mean stored in Field, weighted by
// the count stored in Weight as it was before the mutation.
type MeanUpdate struct {
	Field  string
	Weight string
	Sample float64
}

// Mutation is one atomic change to a status record. Set replaces fields, Inc adds
// to numeric fields and Mean recomputes running averages. Every value on the
// right-hand side is read from the record as it was before the mutation; a Mean's
// weight field must be incremented by exactly one in the same mutation.
type Mutation struct {
	Set  map[string]any
	Inc  map[string]float64
	Mean []MeanUpdate
}

// Validate checks the weight contract of every mean update.
func (m Mutation) Validate() error {
	for _, mu := range m.Mean {
		if mu.Field == "" || mu.Weight == "" {
			return fmt.Errorf("mean update needs field and weight")
		}
		if m.Inc[mu.Weight] != 1 {
			return fmt.Errorf("mean %s: weight %s must be incremented by 1", mu.Field, mu.Weight)
		}
	}
	return nil
}

// IncFields returns the incremented field names in a stable order.
func (m Mutation) IncFields() []string {
	fields := make([]string, 0, len(m.Inc))
	for f := range m.Inc {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}

// Apply returns the document that results from applying m to old.
func (m Mutation) Apply(old Document) Document {
	out := old.Clone()
	for k, v := range m.Set {
		out[k] = v
	}
	for _, f := range m.IncFields() {
		out[f] = Number(old[f]) + m.Inc[f]
	}
	for _, mu := range m.Mean {
		out[mu.Field] = RunningMean(Number(old[mu.Field]), Number(old[mu.Weight]), mu.Sample)
	}
	return out
}

// RunningMean folds sample into a mean of countBefore earlier samples.
// With countBefore == 0 the result is the sample itself.
func RunningMean(oldAvg, countBefore, sample float64) float64 {
	if countBefore <= 0 {
		return sample
	}
	return (oldAvg*countBefore + sample) / (countBefore + 1)
}

// Number reads a numeric document value; anything else counts as zero.
func Number(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case int32:
		return float64(n)
	case json.Number:
		f, _ := n.Float64()
		return f
	}
	return 0
}
