package eventlog

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

// maxRawLine bounds how much of a corrupt line is echoed into its
// synthetic record.
const maxRawLine = 256

// Tail returns up to limit records from the named stream, most recent
// first. limit <= 0 returns every record. A missing file yields no records.
//
// Lines are decoded independently: a line that is not a valid record is
// replaced in the result by a synthetic error record describing it.
// Only I/O failures on the file itself are returned as errors.
func (s *Sink) Tail(name Stream, limit int) ([]Record, error) {
	st, ok := s.streams[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStream, name)
	}

	// Only read what was complete when we looked; appends after this point
	// may still be in flight.
	f, size, err := st.openForRead()
	if errors.Is(err, os.ErrNotExist) {
		return []Record{}, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	lines, err := lastLines(io.LimitReader(f, size), limit)
	if err != nil {
		return nil, err
	}

	records := make([]Record, 0, len(lines))
	for i := len(lines) - 1; i >= 0; i-- {
		rec, perr := decodeLine(lines[i].data)
		if perr != nil {
			records = append(records, syntheticRecord(&ParseError{
				Stream: name,
				Line:   lines[i].number,
				Err:    perr,
			}, lines[i].data, s.now()))
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

type numberedLine struct {
	number int
	data   []byte
}

// lastLines keeps a ring of the final limit non-blank lines.
func lastLines(r io.Reader, limit int) ([]numberedLine, error) {
	br := bufio.NewReader(r)

	var ring []numberedLine
	next := 0
	lineNo := 0
	for {
		raw, err := br.ReadBytes('\n')
		if len(raw) > 0 {
			lineNo++
			raw = bytes.TrimRight(raw, "\r\n")
			if len(bytes.TrimSpace(raw)) > 0 {
				ln := numberedLine{number: lineNo, data: raw}
				switch {
				case limit <= 0 || len(ring) < limit:
					ring = append(ring, ln)
				default:
					ring[next] = ln
					next = (next + 1) % limit
				}
			}
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
	}

	if next == 0 {
		return ring, nil
	}
	ordered := make([]numberedLine, 0, len(ring))
	ordered = append(ordered, ring[next:]...)
	ordered = append(ordered, ring[:next]...)
	return ordered, nil
}

func decodeLine(line []byte) (Record, error) {
	var rec Record
	if err := json.Unmarshal(line, &rec); err != nil {
		return Record{}, err
	}
	if rec.Kind == "" {
		return Record{}, errors.New("missing kind")
	}
	if rec.Timestamp.IsZero() {
		return Record{}, errors.New("missing timestamp")
	}
	return rec, nil
}

func syntheticRecord(perr *ParseError, raw []byte, now time.Time) Record {
	if len(raw) > maxRawLine {
		raw = raw[:maxRawLine]
	}
	return Record{
		Timestamp: now.UTC(),
		Level:     LevelError,
		Kind:      KindError,
		Message:   "unparseable log line",
		Context: map[string]any{
			"stream": string(perr.Stream),
			"line":   perr.Line,
			"error":  perr.Err.Error(),
			"raw":    string(raw),
		},
		Synthetic: true,
	}
}
