// Package diagnostics holds positioned diagnostics per document, modelled on
// LSP 3.16, and the line geometry needed to anchor them.
package diagnostics

import (
	"fmt"
	"strings"
	"unicode/utf16"

	protocol "github.com/tliron/glsp/protocol_3_16"
)

// Document is an addressable text buffer split into lines.
type Document struct {
	URI   string
	lines []string
}

// NewDocument splits text into lines. A trailing carriage return is not part
// of the line.
func NewDocument(uri, text string) *Document {
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return &Document{URI: uri, lines: lines}
}

// LineCount returns the number of lines, at least 1.
func (d *Document) LineCount() int {
	return len(d.lines)
}

// LineRange returns the range spanning a zero-based line, excluding the line break.
// Character offsets are UTF-16 code units as in LSP.
func (d *Document) LineRange(line int) (protocol.Range, error) {
	if line < 0 || line >= len(d.lines) {
		return protocol.Range{}, fmt.Errorf("line %d out of range (document has %d lines)", line, len(d.lines))
	}
	width := len(utf16.Encode([]rune(d.lines[line])))
	return protocol.Range{
		Start: protocol.Position{Line: protocol.UInteger(line), Character: 0},
		End:   protocol.Position{Line: protocol.UInteger(line), Character: protocol.UInteger(width)},
	}, nil
}

// RangeAt returns the range of a zero-based line, narrowed to start at column
// when column is positive. A column past the end of the line gives an empty
// range at the line end.
func (d *Document) RangeAt(line, column int) (protocol.Range, error) {
	rng, err := d.LineRange(line)
	if err != nil {
		return rng, err
	}
	if column > 0 {
		rng.Start.Character = min(protocol.UInteger(column), rng.End.Character)
	}
	return rng, nil
}
