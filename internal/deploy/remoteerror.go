package deploy

import (
	"fmt"
	"strconv"
	"strings"

	"forcecode/internal/apperrors"
)

const (
	unknownError  = "Unknown error"
	statusMarker  = "Message: "
	lineMarker    = "Line: "
	columnMarker  = "Column: "
	metadataParts = 4
)

// PositionedError is a remote failure message located in the source. Line
// and Column are as the remote reported them.
type PositionedError struct {
	Line    int
	Column  int
	Message string
	// Status is the short text shown next to the status line.
	Status string
	// ZeroBased is set when Line is already a zero-based index.
	ZeroBased bool
}

// LineIndex is the zero-based line the error belongs to.
func (p PositionedError) LineIndex() int {
	if p.ZeroBased {
		return p.Line
	}
	return p.Line - 1
}

// ParseRemoteError extracts a position from the free-text failure message of
// a bundle or metadata deploy. fileName is the artifact's base name, which
// bundle messages use as a prefix.
func ParseRemoteError(strategy Strategy, fileName, raw string) (PositionedError, error) {
	switch strategy {
	case StrategyBundle:
		return parseBundleError(fileName, raw)
	case StrategyMetadata:
		return parseMetadataError(raw)
	default:
		return PositionedError{}, apperrors.Parse("remote.error", fmt.Errorf("no free-text format for %s deploys", strategy))
	}
}

// parseBundleError reads "<fileName>: <line>,<col>: <text> Message: <status>".
func parseBundleError(fileName, raw string) (PositionedError, error) {
	_, rest, ok := strings.Cut(raw, fileName+":")
	if !ok {
		return PositionedError{Line: 1, Column: 1, Message: unknownError, Status: unknownError}, nil
	}

	pos, text, ok := strings.Cut(rest, ":")
	if !ok {
		return PositionedError{}, apperrors.Parse("bundle.error", fmt.Errorf("no position in %q", raw))
	}
	lineText, colText, _ := strings.Cut(pos, ",")
	line, err := strconv.Atoi(strings.TrimSpace(lineText))
	if err != nil {
		return PositionedError{}, apperrors.Parse("bundle.error", fmt.Errorf("bad line in %q: %w", raw, err))
	}
	col, err := strconv.Atoi(strings.TrimSpace(colText))
	if err != nil {
		return PositionedError{}, apperrors.Parse("bundle.error", fmt.Errorf("bad column in %q: %w", raw, err))
	}

	message, status, found := strings.Cut(text, statusMarker)
	message = strings.TrimSpace(message)
	if !found {
		status = message
	}
	return PositionedError{Line: line, Column: col, Message: message, Status: strings.TrimSpace(status)}, nil
}

// parseMetadataError reads the four-line form
//
//	<summary>
//	Line: <n>
//	Column: <n>
//	<detail>
//
// The line number is used as a zero-based index as received.
func parseMetadataError(raw string) (PositionedError, error) {
	parts := strings.Split(raw, "\n")
	if len(parts) < metadataParts {
		return PositionedError{}, apperrors.Parse("metadata.error", fmt.Errorf("expected %d lines, got %d", metadataParts, len(parts)))
	}

	line, err := markedInt(parts[1], lineMarker)
	if err != nil {
		return PositionedError{}, apperrors.Parse("metadata.error", err)
	}
	col, err := markedInt(parts[2], columnMarker)
	if err != nil {
		return PositionedError{}, apperrors.Parse("metadata.error", err)
	}

	return PositionedError{
		Line:      line,
		Column:    col,
		Message:   parts[0] + parts[3],
		Status:    parts[0],
		ZeroBased: true,
	}, nil
}

func markedInt(s, marker string) (int, error) {
	_, value, ok := strings.Cut(s, marker)
	if !ok {
		return 0, fmt.Errorf("%q has no %q", s, strings.TrimSpace(marker))
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("%q: %w", s, err)
	}
	return n, nil
}
