package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/Sternrassler/marvel-client/pkg/logging"
	"github.com/rs/zerolog"
)

// Requester issues one signed GET and returns the body of a 200 response.
// Non-200 responses must be reported as errors carrying failMsg.
// *client.Client implements it.
type Requester interface {
	GetJSON(ctx context.Context, endpoint string, params url.Values, failMsg string) ([]byte, error)
}

// Service exposes the collection endpoints.
type Service struct {
	requester Requester
	logger    zerolog.Logger
}

// NewService creates a service over r.
func NewService(r Requester) *Service {
	return &Service{
		requester: r,
		logger:    logging.NewLogger("catalog"),
	}
}

// List returns one page of coll as the upstream sent it.
func (s *Service) List(ctx context.Context, coll Collection, page PageRequest) (json.RawMessage, error) {
	if err := page.Validate(); err != nil {
		return nil, err
	}

	body, err := s.requester.GetJSON(ctx, string(coll), page.Values(), coll.FailureMessage())
	if err != nil {
		return nil, err
	}
	return json.RawMessage(body), nil
}

// ListCharacters returns one raw page of characters.
func (s *Service) ListCharacters(ctx context.Context, page PageRequest) (json.RawMessage, error) {
	return s.List(ctx, Characters, page)
}

// ListComics returns one raw page of comics.
func (s *Service) ListComics(ctx context.Context, page PageRequest) (json.RawMessage, error) {
	return s.List(ctx, Comics, page)
}

// ListSeries returns one raw page of series.
func (s *Service) ListSeries(ctx context.Context, page PageRequest) (json.RawMessage, error) {
	return s.List(ctx, Series, page)
}

// GetCharacter returns the raw upstream document for one character.
func (s *Service) GetCharacter(ctx context.Context, id int) (json.RawMessage, error) {
	endpoint := string(Characters) + "/" + strconv.Itoa(id)
	body, err := s.requester.GetJSON(ctx, endpoint, url.Values{}, "Failed to fetch character")
	if err != nil {
		return nil, err
	}
	return json.RawMessage(body), nil
}

// FetchCharacterSummaries fetches one page of characters and flattens it to
// name and comic count, in upstream order.
func (s *Service) FetchCharacterSummaries(ctx context.Context, page PageRequest) ([]CharacterSummary, error) {
	if err := page.Validate(); err != nil {
		return nil, err
	}

	body, err := s.requester.GetJSON(ctx, string(Characters), page.Values(), Characters.FailureMessage())
	if err != nil {
		return nil, err
	}

	var parsed characterPage
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode characters page: %w", err)
	}
	return parsed.summaries(), nil
}

// SearchCharacters fetches up to limit characters whose name starts with the
// first token of query and keeps those matching the full NameFilter. Zero
// matches yield a *NotFoundError. A blank query applies no filter.
func (s *Service) SearchCharacters(ctx context.Context, query string, limit int) (AggregatedResult, error) {
	filter := NewNameFilter(query)

	entries, err := s.FetchCharacterSummaries(ctx, PageRequest{
		Limit:          limit,
		NameStartsWith: filter.Prefix(),
	})
	if err != nil {
		return nil, err
	}

	matched := filter.Apply(entries)

	s.logger.Debug().
		Str("query", query).
		Str("pattern", filter.Pattern()).
		Int("fetched", len(entries)).
		Int("matched", len(matched)).
		Msg("Character search")

	if len(matched) == 0 {
		return nil, &NotFoundError{Name: query}
	}

	result := make(AggregatedResult, len(matched))
	result.Merge(matched)
	return result, nil
}
