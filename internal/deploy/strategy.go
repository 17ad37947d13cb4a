// Package deploy drives a single-artifact deploy: it picks a strategy for the
// artifact, runs that strategy's remote protocol through a gateway, and turns
// the outcome into positioned diagnostics.
package deploy

import (
	"forcecode/internal/apperrors"
	"forcecode/internal/artifact"
)

// Strategy is the remote protocol used to deploy an artifact.
type Strategy int

const (
	StrategyUnknown Strategy = iota
	// StrategyBundle upserts one definition of a Lightning bundle.
	StrategyBundle
	// StrategyMetadata upserts a whole metadata object parsed from XML.
	StrategyMetadata
	// StrategyContainer stages source in a MetadataContainer and compiles it.
	StrategyContainer
)

func (s Strategy) String() string {
	switch s {
	case StrategyBundle:
		return "bundle"
	case StrategyMetadata:
		return "metadata"
	case StrategyContainer:
		return "container"
	default:
		return "unknown"
	}
}

// MarshalText renders the strategy name in JSON and logs.
func (s Strategy) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// unknownKindMessage is shown when a document cannot be classified.
const unknownKindMessage = "Unknown Tooling Type.  Ensure the body is well formed"

// Classify selects the strategy for a. It makes no remote calls.
func Classify(a artifact.Artifact) (Strategy, error) {
	switch a.Kind {
	case artifact.KindUnknown:
		return StrategyUnknown, apperrors.Classification(unknownKindMessage)
	case artifact.KindAuraDefinition:
		return StrategyBundle, nil
	case artifact.KindPermissionSet, artifact.KindCustomObject:
		return StrategyMetadata, nil
	default:
		return StrategyContainer, nil
	}
}
