// Package planner computes which catalog candidates a crawl run should fetch.
//
// The window is defined on the full candidate list, so repeated runs with the
// same start index select the same slice regardless of how many entries were
// already processed. Processed entries are filtered out of the batch but still
// occupy their position in the window.
package planner

import (
	"errors"
	"fmt"

	"github.com/JakeFAU/quotes-crawler/internal/crawler"
)

// ErrInvalidWindow is returned for negative offsets or non-positive sizes.
var ErrInvalidWindow = errors.New("invalid batch window")

// Processed reports whether a candidate URL was already handled.
type Processed interface {
	Contains(url string) bool
}

// Window selects a slice of the candidate list. MaxTotal of zero means no cap.
type Window struct {
	Start    int `json:"start_index"`
	Size     int `json:"batch_size"`
	MaxTotal int `json:"max_total"`
}

// Validate checks the window bounds.
func (w Window) Validate() error {
	switch {
	case w.Start < 0:
		return fmt.Errorf("%w: start index %d must be >= 0", ErrInvalidWindow, w.Start)
	case w.Size <= 0:
		return fmt.Errorf("%w: batch size %d must be > 0", ErrInvalidWindow, w.Size)
	case w.MaxTotal < 0:
		return fmt.Errorf("%w: max total %d must be >= 0", ErrInvalidWindow, w.MaxTotal)
	}
	return nil
}

// Result is the outcome of planning one batch.
type Result struct {
	Batch     []crawler.Candidate `json:"batch"`
	Skipped   []crawler.Candidate `json:"skipped,omitempty"`
	Start     int                 `json:"start_index"`
	End       int                 `json:"end_index"`
	NextStart int                 `json:"next_start_index"`
	Exhausted bool                `json:"exhausted"`
}

// Plan selects candidates[start:end] minus processed entries.
// processed may be nil.
func Plan(candidates []crawler.Candidate, w Window, processed Processed) (Result, error) {
	if err := w.Validate(); err != nil {
		return Result{}, err
	}
	total := len(candidates)
	end := w.Start + w.Size
	if w.MaxTotal > 0 && end > w.MaxTotal {
		end = w.MaxTotal
	}
	if end > total {
		end = total
	}
	res := Result{
		Start:     w.Start,
		End:       end,
		NextStart: end,
		Exhausted: end >= total || (w.MaxTotal > 0 && end >= w.MaxTotal),
	}
	if w.Start >= end {
		// start beyond the list or the cap; nothing to do.
		res.Exhausted = true
		return res, nil
	}
	for _, c := range candidates[w.Start:end] {
		if processed != nil && processed.Contains(c.URL) {
			res.Skipped = append(res.Skipped, c)
			continue
		}
		res.Batch = append(res.Batch, c)
	}
	return res, nil
}
