// Package catalog fetches and shapes data from the Marvel collection
// endpoints: raw passthrough listings, flattened character summaries and
// name searches.
package catalog

import (
	"fmt"
	"net/url"
	"strconv"
)

// MaxPageSize is the largest page the upstream accepts.
const MaxPageSize = 100

// Collection names an upstream listing endpoint.
type Collection string

const (
	Characters Collection = "characters"
	Comics     Collection = "comics"
	Series     Collection = "series"
)

// FailureMessage is the message reported when a listing of c fails.
func (c Collection) FailureMessage() string {
	return "Failed to fetch " + string(c)
}

// PageRequest selects one page of a collection.
type PageRequest struct {
	Limit          int
	Offset         int
	NameStartsWith string
}

// Validate checks the bounds the upstream enforces.
func (p PageRequest) Validate() error {
	if p.Limit < 1 || p.Limit > MaxPageSize {
		return fmt.Errorf("%w: limit must be between 1 and %d (got %d)", ErrInvalidPage, MaxPageSize, p.Limit)
	}
	if p.Offset < 0 {
		return fmt.Errorf("%w: offset must be >= 0 (got %d)", ErrInvalidPage, p.Offset)
	}
	return nil
}

// Values renders the page as query parameters. nameStartsWith is only
// included when set.
func (p PageRequest) Values() url.Values {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(p.Limit))
	q.Set("offset", strconv.Itoa(p.Offset))
	if p.NameStartsWith != "" {
		q.Set("nameStartsWith", p.NameStartsWith)
	}
	return q
}

// CharacterSummary is a character reduced to its name and comic count.
type CharacterSummary struct {
	Name        string `json:"name"`
	ComicsCount int    `json:"comics_count"`
}

// AggregatedResult maps character name to comic count.
type AggregatedResult map[string]int

// Merge adds entries to r. A later entry replaces an earlier one with the
// same name.
func (r AggregatedResult) Merge(entries []CharacterSummary) {
	for _, e := range entries {
		r[e.Name] = e.ComicsCount
	}
}

// characterPage is the subset of the upstream envelope we read.
type characterPage struct {
	Data struct {
		Offset  int `json:"offset"`
		Limit   int `json:"limit"`
		Total   int `json:"total"`
		Count   int `json:"count"`
		Results []struct {
			Name   string `json:"name"`
			Comics struct {
				Available int `json:"available"`
			} `json:"comics"`
		} `json:"results"`
	} `json:"data"`
}

func (p *characterPage) summaries() []CharacterSummary {
	out := make([]CharacterSummary, 0, len(p.Data.Results))
	for _, r := range p.Data.Results {
		count := r.Comics.Available
		if count < 0 {
			count = 0
		}
		out = append(out, CharacterSummary{Name: r.Name, ComicsCount: count})
	}
	return out
}
