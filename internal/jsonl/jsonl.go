// Package jsonl reads and writes JSON Lines: one self-contained JSON object
// per line, newline-separated, no trailing separators.
package jsonl

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
)

// maxLineBytes bounds a single record; post bodies are small but media
// blocks and raw metadata can be generous.
const maxLineBytes = 16 << 20

// Writer encodes one value per line.
type Writer struct {
	enc *json.Encoder
}

func NewWriter(w io.Writer) *Writer {
	enc := json.NewEncoder(w)
	// Post bodies and URLs must round-trip verbatim.
	enc.SetEscapeHTML(false)
	return &Writer{enc: enc}
}

// Write appends v as one line. Encoder adds the trailing newline.
func (w *Writer) Write(v any) error {
	return w.enc.Encode(v)
}

// LineFunc receives the 1-based line number and the raw line bytes.
// Returning an error aborts the scan.
type LineFunc func(line int, raw []byte) error

// ErrFunc is called once per skipped line.
type ErrFunc func(line int, err error)

// DecodeLines streams r line by line. Each non-empty line must be a JSON
// value; lines that are not valid JSON are reported through onErr and
// skipped. Returns the number of lines handed to fn.
func DecodeLines(r io.Reader, fn LineFunc, onErr ErrFunc) (int, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64<<10), maxLineBytes)

	line := 0
	processed := 0
	for sc.Scan() {
		line++
		raw := sc.Bytes()
		if len(raw) == 0 {
			continue
		}

		if !json.Valid(raw) {
			onErr(line, fmt.Errorf("invalid JSON"))
			continue
		}

		// The scanner reuses its buffer; hand the callback a stable copy.
		cp := make([]byte, len(raw))
		copy(cp, raw)

		if err := fn(line, cp); err != nil {
			return processed, err
		}
		processed++
	}
	if err := sc.Err(); err != nil {
		return processed, fmt.Errorf("read line %d: %w", line+1, err)
	}
	return processed, nil
}
