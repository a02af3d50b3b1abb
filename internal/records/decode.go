package records

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/JakeFAU/quotes-crawler/internal/crawler"
)

var (
	// ErrTruncated means the input ended in the middle of a value.
	ErrTruncated = errors.New("record file truncated")
	// ErrMalformed means the input is not a sequence of records.
	ErrMalformed = errors.New("record file malformed")
)

// ReadFile reads and decodes a record file.
func ReadFile(path string) ([]crawler.RawRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read record file: %w", err)
	}
	recs, err := Decode(data)
	if err != nil {
		return recs, fmt.Errorf("%s: %w", path, err)
	}
	return recs, nil
}

// Decode accepts a stream of top-level JSON values where each value is either
// a record object or an array of record objects. That covers JSON Lines,
// a single exported array, and arrays appended back to back.
//
// On ErrTruncated or ErrMalformed the records decoded before the bad value are
// returned too.
func Decode(data []byte) ([]crawler.RawRecord, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	var out []crawler.RawRecord
	for {
		off := dec.InputOffset()
		c, ok := firstNonSpace(data[off:])
		if !ok {
			return out, nil
		}
		switch c {
		case '[':
			if _, err := dec.Token(); err != nil {
				return out, classify(err, off)
			}
			for dec.More() {
				var rec crawler.RawRecord
				if err := dec.Decode(&rec); err != nil {
					return out, classify(err, dec.InputOffset())
				}
				out = append(out, rec)
			}
			if _, err := dec.Token(); err != nil {
				return out, classify(err, dec.InputOffset())
			}
		case '{':
			var rec crawler.RawRecord
			if err := dec.Decode(&rec); err != nil {
				return out, classify(err, off)
			}
			out = append(out, rec)
		default:
			return out, fmt.Errorf("%w: unexpected %q at offset %d", ErrMalformed, c, off)
		}
	}
}

func classify(err error, off int64) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w at offset %d", ErrTruncated, off)
	}
	return fmt.Errorf("%w at offset %d: %v", ErrMalformed, off, err)
}

func firstNonSpace(b []byte) (byte, bool) {
	for _, c := range b {
		switch c {
		case ' ', '\t', '\r', '\n':
			continue
		default:
			return c, true
		}
	}
	return 0, false
}
