// Package sanitize guards the operator's terminal and client connections
// against a misbehaving device emitting bytes that are not valid UTF-8,
// per SPEC_FULL.md §10.
package sanitize

import (
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
)

// Line replaces any ill-formed UTF-8 byte sequences in a device response
// line with the Unicode replacement character before it is ever echoed to
// stdout or forwarded to a client. On the (expected-never) transform
// failure it returns the input unchanged rather than dropping the line.
func Line(line []byte) []byte {
	out, _, err := transform.Bytes(runes.ReplaceIllFormed(), line)
	if err != nil {
		return line
	}
	return out
}
