package main

import (
	"encoding/json"
	"fmt"
	"io"

	"isolator/internal/isolation/batch"
	"isolator/internal/isolation/outcome"
)

// report is the JSON shape of one outcome.
type report struct {
	Computation string    `json:"computation,omitempty"`
	Kind        string    `json:"kind"`
	Value       any       `json:"value,omitempty"`
	Log         string    `json:"log,omitempty"`
	Allowed     string    `json:"allowed,omitempty"`
	Status      string    `json:"status,omitempty"`
	Error       string    `json:"error,omitempty"`
	Chain       []*report `json:"chain,omitempty"`
}

// reporter fills a report from an outcome.
type reporter struct {
	out *report
}

func newReport(o outcome.Outcome) *report {
	r := &report{Kind: outcome.Kind(o)}
	outcome.Visit(o, reporter{out: r})
	return r
}

func (v reporter) Success(o outcome.Success) {
	v.out.Value = jsonValue(o.Value)
	v.out.Log = string(o.Log)
}

func (v reporter) Timeout(o outcome.Timeout) {
	v.out.Allowed = o.Allowed.String()
}

func (v reporter) DecodeFailure(o outcome.DecodeFailure) {
	if o.Err != nil {
		v.out.Error = o.Err.Error()
	}
}

func (v reporter) ChildFailure(o outcome.ChildFailure) {
	v.out.Status = o.Status.String()
	v.out.Log = string(o.Log)
}

func (v reporter) SpawnFailure(outcome.SpawnFailure) {}

func (v reporter) Chain(o outcome.Chain) {
	for _, part := range outcome.Flatten(o) {
		v.out.Chain = append(v.out.Chain, newReport(part))
	}
}

// jsonValue turns maps with non-string keys into string-keyed ones so the
// value can be marshalled.
func jsonValue(v any) any {
	switch t := v.(type) {
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[fmt.Sprint(k)] = jsonValue(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = jsonValue(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = jsonValue(e)
		}
		return out
	default:
		return v
	}
}

// writeReports prints one JSON object per result and reports whether every
// outcome was a success.
func writeReports(w io.Writer, results []batch.Result) (bool, error) {
	enc := json.NewEncoder(w)
	allOK := true
	for _, res := range results {
		r := newReport(res.Outcome)
		r.Computation = res.Job.Computation
		if r.Kind != "success" {
			allOK = false
		}
		if err := enc.Encode(r); err != nil {
			return false, err
		}
	}
	return allOK, nil
}
