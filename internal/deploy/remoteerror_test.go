package deploy

import (
	"errors"
	"testing"

	"forcecode/internal/apperrors"
)

func TestParseRemoteError_Bundle(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		raw      string
		expected PositionedError
	}{
		{
			"positioned with status",
			"Foo.cmp: 3,5: some message Message: bad syntax",
			PositionedError{Line: 3, Column: 5, Message: "some message", Status: "bad syntax"},
		},
		{
			"no status marker",
			"Failed: Foo.cmp:12,1: Invalid attribute",
			PositionedError{Line: 12, Column: 1, Message: "Invalid attribute", Status: "Invalid attribute"},
		},
		{
			"no file prefix",
			"INSUFFICIENT_ACCESS",
			PositionedError{Line: 1, Column: 1, Message: "Unknown error", Status: "Unknown error"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ParseRemoteError(StrategyBundle, "Foo.cmp", tt.raw)
			if err != nil {
				t.Fatalf("ParseRemoteError() error = %v", err)
			}
			if got != tt.expected {
				t.Errorf("ParseRemoteError() = %+v, want %+v", got, tt.expected)
			}
		})
	}
}

func TestParseRemoteError_BundleLineIndex(t *testing.T) {
	t.Parallel()
	got, err := ParseRemoteError(StrategyBundle, "Foo.cmp", "Foo.cmp: 3,5: some message Message: bad syntax")
	if err != nil {
		t.Fatal(err)
	}
	if got.LineIndex() != 2 {
		t.Errorf("expected zero-based line 2, got %d", got.LineIndex())
	}
}

func TestParseRemoteError_Metadata(t *testing.T) {
	t.Parallel()
	raw := "Error parsing file\nLine: 7\nColumn: 3\n: Element label is duplicated"

	got, err := ParseRemoteError(StrategyMetadata, "Admin.permissionset", raw)
	if err != nil {
		t.Fatalf("ParseRemoteError() error = %v", err)
	}
	expected := PositionedError{
		Line:      7,
		Column:    3,
		Message:   "Error parsing file: Element label is duplicated",
		Status:    "Error parsing file",
		ZeroBased: true,
	}
	if got != expected {
		t.Errorf("ParseRemoteError() = %+v, want %+v", got, expected)
	}
	if got.LineIndex() != 7 {
		t.Errorf("expected line index 7, got %d", got.LineIndex())
	}
}

func TestParseRemoteError_Malformed(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		strategy Strategy
		raw      string
	}{
		{"metadata single line", StrategyMetadata, "DUPLICATE_VALUE"},
		{"metadata bad line", StrategyMetadata, "summary\nLine: seven\nColumn: 3\ndetail"},
		{"metadata missing column", StrategyMetadata, "summary\nLine: 7\n3\ndetail"},
		{"bundle bad line", StrategyBundle, "Foo.cmp: x,5: text"},
		{"bundle bad column", StrategyBundle, "Foo.cmp: 3: text"},
		{"bundle no position", StrategyBundle, "Foo.cmp: no colon after"},
		{"container", StrategyContainer, "anything"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := ParseRemoteError(tt.strategy, "Foo.cmp", tt.raw); !errors.Is(err, apperrors.ErrParse) {
				t.Errorf("expected parse error, got %v", err)
			}
		})
	}
}
