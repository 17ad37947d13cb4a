package diagnostics

import (
	"slices"
	"sync"

	protocol "github.com/tliron/glsp/protocol_3_16"
)

// Source is stamped on every diagnostic produced by a deploy.
const Source = "forcecode"

// Severity tags used by remote problem types.
const (
	ProblemError   = "Error"
	ProblemWarning = "Warning"
)

// Sink accepts the complete diagnostic set for a document. Every call
// replaces whatever was published before for that URI.
type Sink interface {
	Publish(uri string, diagnostics []protocol.Diagnostic)
}

// Store is an in-memory Sink that can be read back.
type Store struct {
	mu          sync.RWMutex
	diagnostics map[string][]protocol.Diagnostic
}

// NewStore creates an empty diagnostic store.
func NewStore() *Store {
	return &Store{
		diagnostics: make(map[string][]protocol.Diagnostic),
	}
}

// Publish overwrites the set for uri. A nil slice is stored as empty.
func (s *Store) Publish(uri string, diagnostics []protocol.Diagnostic) {
	set := make([]protocol.Diagnostic, len(diagnostics))
	copy(set, diagnostics)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.diagnostics[uri] = set
}

// Get returns a copy of the set published for uri.
func (s *Store) Get(uri string) []protocol.Diagnostic {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.diagnostics[uri])
}

// URIs returns every document that has been published to, sorted.
func (s *Store) URIs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	uris := make([]string, 0, len(s.diagnostics))
	for uri := range s.diagnostics {
		uris = append(uris, uri)
	}
	slices.Sort(uris)
	return uris
}

// New builds a diagnostic at rng. severity is a remote problem type tag;
// anything other than "Warning" is reported as an error.
func New(rng protocol.Range, message, severity string) protocol.Diagnostic {
	level := protocol.DiagnosticSeverityError
	if severity == ProblemWarning {
		level = protocol.DiagnosticSeverityWarning
	}
	source := Source
	return protocol.Diagnostic{
		Range:    rng,
		Severity: &level,
		Source:   &source,
		Message:  message,
	}
}

// HasErrors reports whether any diagnostic is error severity.
func HasErrors(diagnostics []protocol.Diagnostic) bool {
	for _, d := range diagnostics {
		if d.Severity == nil || *d.Severity == protocol.DiagnosticSeverityError {
			return true
		}
	}
	return false
}
