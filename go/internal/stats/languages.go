// Package stats builds the submission language breakdown shown on user pages.
package stats

import (
	"errors"
	"fmt"

	"github.com/wykoj/livewatch/go/clients/judge_client"
)

var ErrMalformed = errors.New("malformed submission languages")

// Palette is the chart palette; slices take colors in order and wrap around.
var Palette = [...]string{
	"rgb(114,229,239)",
	"rgb(33,166,69)",
	"rgb(148,234,91)",
	"rgb(104,149,188)",
	"rgb(33,240,182)",
	"rgb(31,161,152)",
	"rgb(187,207,122)",
	"rgb(255,77,130)",
	"rgb(255,178,190)",
	"rgb(198,129,54)",
}

// Slice is one language's share of a user's submissions.
type Slice struct {
	Language    string `json:"language"`
	Occurrences int    `json:"occurrences"`
	Color       string `json:"color"`
}

// Breakdown pairs each language with its occurrence count.
func Breakdown(in judge_client.SubmissionLanguages) ([]Slice, error) {
	if len(in.Languages) != len(in.Occurrences) {
		return nil, fmt.Errorf("%w: %d languages, %d occurrence counts",
			ErrMalformed, len(in.Languages), len(in.Occurrences))
	}

	slices := make([]Slice, 0, len(in.Languages))
	for i, lang := range in.Languages {
		if in.Occurrences[i] < 0 {
			return nil, fmt.Errorf("%w: negative count for %s", ErrMalformed, lang)
		}
		slices = append(slices, Slice{
			Language:    lang,
			Occurrences: in.Occurrences[i],
			Color:       Palette[i%len(Palette)],
		})
	}
	return slices, nil
}

// Total returns the number of submissions across all slices.
func Total(slices []Slice) int {
	total := 0
	for _, s := range slices {
		total += s.Occurrences
	}
	return total
}
