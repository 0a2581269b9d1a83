package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"testing"

	"github.com/Sternrassler/marvel-client/internal/testutil"
	"github.com/Sternrassler/marvel-client/pkg/auth"
	"github.com/Sternrassler/marvel-client/pkg/client"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRequester records calls and replays a fixed body or error.
type fakeRequester struct {
	body      string
	err       error
	endpoints []string
	params    []url.Values
	failMsgs  []string
}

func (f *fakeRequester) GetJSON(_ context.Context, endpoint string, params url.Values, failMsg string) ([]byte, error) {
	f.endpoints = append(f.endpoints, endpoint)
	f.params = append(f.params, params)
	f.failMsgs = append(f.failMsgs, failMsg)
	if f.err != nil {
		return nil, f.err
	}
	return []byte(f.body), nil
}

const twoCharacters = `{"data":{"results":[
	{"name":"Spider-Man","comics":{"available":2572}},
	{"name":"Iron Man","comics":{"available":2411}}
]}}`

func newMockService(t *testing.T) (*Service, *testutil.MockMarvel) {
	t.Helper()

	mock := testutil.NewMockMarvel("pub", "priv")
	t.Cleanup(mock.Close)
	mock.SetCharacters(testutil.SampleCharacters())

	cfg := client.DefaultConfig(auth.Credentials{PublicKey: "pub", PrivateKey: "priv"})
	cfg.BaseURL = mock.URL()
	c, err := client.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	return NewService(c), mock
}

func TestPageRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		page    PageRequest
		wantErr bool
	}{
		{"min", PageRequest{Limit: 1}, false},
		{"max", PageRequest{Limit: MaxPageSize, Offset: 500}, false},
		{"zero limit", PageRequest{Limit: 0}, true},
		{"limit too large", PageRequest{Limit: MaxPageSize + 1}, true},
		{"negative offset", PageRequest{Limit: 10, Offset: -1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.page.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidPage)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestPageRequest_Values(t *testing.T) {
	q := PageRequest{Limit: 10, Offset: 20}.Values()
	assert.Equal(t, "10", q.Get("limit"))
	assert.Equal(t, "20", q.Get("offset"))
	assert.False(t, q.Has("nameStartsWith"))

	q = PageRequest{Limit: 5, NameStartsWith: "spider"}.Values()
	assert.Equal(t, "spider", q.Get("nameStartsWith"))
	assert.Equal(t, "0", q.Get("offset"))
}

func TestService_ListPassesBodyThrough(t *testing.T) {
	body := `{"code":200,"data":{"results":[{"id":1,"title":"X"}]},"extra":true}`
	fake := &fakeRequester{body: body}
	svc := NewService(fake)

	for _, tc := range []struct {
		list     func(context.Context, PageRequest) (json.RawMessage, error)
		endpoint string
		failMsg  string
	}{
		{svc.ListCharacters, "characters", "Failed to fetch characters"},
		{svc.ListComics, "comics", "Failed to fetch comics"},
		{svc.ListSeries, "series", "Failed to fetch series"},
	} {
		fake.endpoints, fake.failMsgs = nil, nil

		got, err := tc.list(context.Background(), PageRequest{Limit: 10, Offset: 3})
		require.NoError(t, err)
		assert.JSONEq(t, body, string(got))
		assert.Equal(t, []string{tc.endpoint}, fake.endpoints)
		assert.Equal(t, []string{tc.failMsg}, fake.failMsgs)
	}
}

func TestService_ListRejectsInvalidPage(t *testing.T) {
	fake := &fakeRequester{body: "{}"}
	svc := NewService(fake)

	_, err := svc.ListComics(context.Background(), PageRequest{Limit: 0})

	assert.ErrorIs(t, err, ErrInvalidPage)
	assert.Empty(t, fake.endpoints, "no upstream call for invalid page")
}

func TestService_GetCharacter(t *testing.T) {
	fake := &fakeRequester{body: `{"data":{"results":[{"id":1009610}]}}`}
	svc := NewService(fake)

	got, err := svc.GetCharacter(context.Background(), 1009610)

	require.NoError(t, err)
	assert.JSONEq(t, fake.body, string(got))
	assert.Equal(t, []string{"characters/1009610"}, fake.endpoints)
	assert.Equal(t, []string{"Failed to fetch character"}, fake.failMsgs)
}

func TestService_FetchCharacterSummaries(t *testing.T) {
	fake := &fakeRequester{body: twoCharacters}
	svc := NewService(fake)

	got, err := svc.FetchCharacterSummaries(context.Background(), PageRequest{Limit: 50})

	require.NoError(t, err)
	assert.Equal(t, []CharacterSummary{
		{Name: "Spider-Man", ComicsCount: 2572},
		{Name: "Iron Man", ComicsCount: 2411},
	}, got)
	assert.Equal(t, "50", fake.params[0].Get("limit"))
}

func TestService_FetchCharacterSummaries_BadJSON(t *testing.T) {
	svc := NewService(&fakeRequester{body: "not json"})

	_, err := svc.FetchCharacterSummaries(context.Background(), PageRequest{Limit: 1})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode characters page")
}

func TestService_PropagatesUpstreamError(t *testing.T) {
	upstreamErr := &client.UpstreamError{Endpoint: "characters", StatusCode: 500, Message: "Failed to fetch characters"}
	svc := NewService(&fakeRequester{err: upstreamErr})

	_, err := svc.FetchCharacterSummaries(context.Background(), PageRequest{Limit: 1})

	var ue *client.UpstreamError
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, 500, ue.StatusCode)
}

func TestService_SearchCharacters(t *testing.T) {
	svc, mock := newMockService(t)

	got, err := svc.SearchCharacters(context.Background(), "spider man", MaxPageSize)

	require.NoError(t, err)
	assert.Equal(t, AggregatedResult{
		"Spider-Man":            2572,
		"Spider Man (Ultimate)": 80,
	}, got)

	reqs := mock.GetRequests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "spider", reqs[0].Get("nameStartsWith"))
}

func TestService_SearchCharacters_CaseInsensitive(t *testing.T) {
	svc, _ := newMockService(t)

	got, err := svc.SearchCharacters(context.Background(), "SPIDER", MaxPageSize)

	require.NoError(t, err)
	assert.Len(t, got, 4)
	assert.Contains(t, got, "Spider-Woman")
}

func TestService_SearchCharacters_NotFound(t *testing.T) {
	svc, _ := newMockService(t)

	_, err := svc.SearchCharacters(context.Background(), "NonExistentCharacter", MaxPageSize)

	require.ErrorIs(t, err, ErrNotFound)
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "NonExistentCharacter", nf.Name)
	assert.Equal(t, "No character found with name NonExistentCharacter", err.Error())
}

func TestService_SearchCharacters_PrefixHitButPatternMiss(t *testing.T) {
	svc, _ := newMockService(t)

	// upstream returns every "Spider..." name, none continue with "Pig"
	_, err := svc.SearchCharacters(context.Background(), "spider pig", MaxPageSize)

	assert.ErrorIs(t, err, ErrNotFound)
}

func TestService_SearchCharacters_EmptyQuery(t *testing.T) {
	svc, mock := newMockService(t)

	got, err := svc.SearchCharacters(context.Background(), "", MaxPageSize)

	require.NoError(t, err)
	assert.Len(t, got, len(testutil.SampleCharacters()))
	assert.False(t, mock.GetRequests()[0].Has("nameStartsWith"))
}

func TestService_UpstreamStatusFromMock(t *testing.T) {
	svc, mock := newMockService(t)
	mock.SetResponse("/comics", testutil.MockResponse{StatusCode: http.StatusServiceUnavailable})

	_, err := svc.ListComics(context.Background(), PageRequest{Limit: 10})

	var ue *client.UpstreamError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, http.StatusServiceUnavailable, ue.StatusCode)
	assert.Equal(t, "Failed to fetch comics", ue.Message)
}
