package deploy

import (
	protocol "github.com/tliron/glsp/protocol_3_16"

	"forcecode/internal/diagnostics"
)

// Normalized is the outcome of a compile as diagnostics plus, for failures
// that cannot be placed on a line, an alert message.
type Normalized struct {
	Diagnostics []protocol.Diagnostic
	Alert       string
}

// Failed reports whether the compile failed in any way.
func (n Normalized) Failed() bool {
	return n.Alert != "" || diagnostics.HasErrors(n.Diagnostics)
}

// NormalizeRequests converts compile request rows into diagnostics on doc.
// Rows in the Error state are not walked for component failures; they only
// raise an alert. Only problems of type "Error" become diagnostics.
func NormalizeRequests(doc *diagnostics.Document, requests []AsyncRequest) Normalized {
	out := Normalized{Diagnostics: []protocol.Diagnostic{}}

	for _, req := range requests {
		if req.State == StateError {
			out.Alert = alertText(req)
			continue
		}

		var failures []ComponentFailure
		if req.DeployDetails != nil {
			failures = req.DeployDetails.ComponentFailures
		}
		for _, f := range failures {
			if f.ProblemType != diagnostics.ProblemError {
				continue
			}
			out.Diagnostics = append(out.Diagnostics, diagnostics.New(failureRange(doc, f), f.Problem, f.ProblemType))
		}

		if len(failures) == 0 && req.State != StateCompleted && req.ErrorMsg != "" {
			out.Alert = req.ErrorMsg
		}
	}
	return out
}

func alertText(req AsyncRequest) string {
	if req.ErrorMsg != "" {
		return req.ErrorMsg
	}
	return req.State
}

// failureRange anchors a component failure. The reported line is one-based
// and may be negative or missing; a positive column narrows the start.
func failureRange(doc *diagnostics.Document, f ComponentFailure) protocol.Range {
	line := 1
	if f.LineNumber != nil && *f.LineNumber != 0 {
		line = abs(*f.LineNumber)
	}
	column := 0
	if f.ColumnNumber != nil {
		column = *f.ColumnNumber
	}
	return anchor(doc, line-1, column)
}

// anchor returns the range at a zero-based line, clamped into the document.
func anchor(doc *diagnostics.Document, line, column int) protocol.Range {
	if line >= doc.LineCount() {
		line = doc.LineCount() - 1
	}
	if line < 0 {
		line = 0
	}
	rng, err := doc.RangeAt(line, column)
	if err != nil {
		return protocol.Range{}
	}
	return rng
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
