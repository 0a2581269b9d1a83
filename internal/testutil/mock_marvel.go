// Package testutil provides a mock Marvel catalog server for tests.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Sternrassler/marvel-client/pkg/auth"
)

// BasePath is the path prefix served by the mock, matching the real API.
const BasePath = "/v1/public"

// Character is a character served by the mock.
type Character struct {
	ID     int
	Name   string
	Comics int
}

// MockResponse defines a canned response for a path.
type MockResponse struct {
	StatusCode int
	Body       string
	Delay      time.Duration
}

// MockMarvel is a configurable mock of the catalog API. It checks the
// ts/apikey/hash triple on every request and implements limit, offset and
// nameStartsWith over its in-memory data.
type MockMarvel struct {
	server     *httptest.Server
	publicKey  string
	privateKey string

	mu         sync.RWMutex
	handlers   map[string]http.HandlerFunc
	characters []Character
	titles     map[string][]string
	requests   []url.Values
}

// NewMockMarvel starts a mock accepting the given keys.
func NewMockMarvel(publicKey, privateKey string) *MockMarvel {
	m := &MockMarvel{
		publicKey:  publicKey,
		privateKey: privateKey,
		handlers:   make(map[string]http.HandlerFunc),
		titles:     make(map[string][]string),
	}

	m.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		m.requests = append(m.requests, r.URL.Query())
		handler, exists := m.handlers[r.URL.Path]
		m.mu.Unlock()

		if !m.checkSignature(w, r.URL.Query()) {
			return
		}

		if exists {
			handler(w, r)
			return
		}

		m.defaultHandler(w, r)
	}))

	return m
}

// URL returns the base URL to configure clients with, including BasePath.
func (m *MockMarvel) URL() string {
	return m.server.URL + BasePath
}

// Close shuts down the mock server.
func (m *MockMarvel) Close() {
	m.server.Close()
}

// Reset clears recorded requests.
func (m *MockMarvel) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = nil
}

// SetCharacters replaces the character data set.
func (m *MockMarvel) SetCharacters(chars []Character) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.characters = append([]Character(nil), chars...)
}

// SetTitles replaces the titles served for "comics" or "series".
func (m *MockMarvel) SetTitles(collection string, titles []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.titles[collection] = append([]string(nil), titles...)
}

// SetHandler overrides the handler for an exact path (including BasePath).
func (m *MockMarvel) SetHandler(path string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a canned response for a path below BasePath,
// e.g. "/characters".
func (m *MockMarvel) SetResponse(path string, resp MockResponse) {
	m.SetHandler(BasePath+path, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			select {
			case <-time.After(resp.Delay):
			case <-r.Context().Done():
				return
			}
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// GetRequestCount returns the number of requests received.
func (m *MockMarvel) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.requests)
}

// GetRequests returns the query of every request received, in order.
func (m *MockMarvel) GetRequests() []url.Values {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]url.Values(nil), m.requests...)
}

func (m *MockMarvel) checkSignature(w http.ResponseWriter, q url.Values) bool {
	ts, key, hash := q.Get(auth.ParamTimestamp), q.Get(auth.ParamAPIKey), q.Get(auth.ParamHash)
	if ts == "" || key == "" || hash == "" {
		writeJSON(w, http.StatusConflict, map[string]string{
			"code":    "MissingParameter",
			"message": "You must provide a timestamp, apikey and hash.",
		})
		return false
	}
	if key != m.publicKey || hash != auth.Hash(ts, m.privateKey, m.publicKey) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{
			"code":    "InvalidCredentials",
			"message": "That hash, timestamp and key combination is invalid.",
		})
		return false
	}
	return true
}

func (m *MockMarvel) defaultHandler(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, BasePath)
	parts := strings.Split(strings.Trim(path, "/"), "/")

	switch {
	case len(parts) == 1 && parts[0] == "characters":
		m.listCharacters(w, r.URL.Query())
	case len(parts) == 2 && parts[0] == "characters":
		m.getCharacter(w, parts[1])
	case len(parts) == 1 && (parts[0] == "comics" || parts[0] == "series"):
		m.listTitles(w, parts[0], r.URL.Query())
	default:
		writeJSON(w, http.StatusNotFound, map[string]string{
			"code":    "ResourceNotFound",
			"message": path + " does not exist",
		})
	}
}

func (m *MockMarvel) listCharacters(w http.ResponseWriter, q url.Values) {
	limit, offset, ok := pageParams(w, q)
	if !ok {
		return
	}

	m.mu.RLock()
	var matched []Character
	prefix := strings.ToLower(q.Get("nameStartsWith"))
	for _, c := range m.characters {
		if prefix == "" || strings.HasPrefix(strings.ToLower(c.Name), prefix) {
			matched = append(matched, c)
		}
	}
	m.mu.RUnlock()

	page := window(len(matched), offset, limit)
	results := make([]map[string]any, 0, page[1]-page[0])
	for _, c := range matched[page[0]:page[1]] {
		results = append(results, characterJSON(c))
	}

	writeJSON(w, http.StatusOK, envelope(offset, limit, len(matched), results))
}

func (m *MockMarvel) getCharacter(w http.ResponseWriter, rawID string) {
	id, err := strconv.Atoi(rawID)
	if err == nil {
		m.mu.RLock()
		defer m.mu.RUnlock()
		for _, c := range m.characters {
			if c.ID == id {
				writeJSON(w, http.StatusOK, envelope(0, 1, 1, []map[string]any{characterJSON(c)}))
				return
			}
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{
		"code":    "ResourceNotFound",
		"message": "We couldn't find that character",
	})
}

func (m *MockMarvel) listTitles(w http.ResponseWriter, collection string, q url.Values) {
	limit, offset, ok := pageParams(w, q)
	if !ok {
		return
	}

	m.mu.RLock()
	titles := m.titles[collection]
	page := window(len(titles), offset, limit)
	results := make([]map[string]any, 0, page[1]-page[0])
	for i, title := range titles[page[0]:page[1]] {
		results = append(results, map[string]any{"id": page[0] + i + 1, "title": title})
	}
	m.mu.RUnlock()

	writeJSON(w, http.StatusOK, envelope(offset, limit, len(titles), results))
}

// pageParams applies the upstream's defaults and bounds: limit 20, 1..100.
func pageParams(w http.ResponseWriter, q url.Values) (limit, offset int, ok bool) {
	limit, offset = 20, 0
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 100 {
			writeJSON(w, http.StatusConflict, map[string]string{
				"code":    "InvalidOrUnrecognizedParameter",
				"message": "You must pass a limit between 1 and 100.",
			})
			return 0, 0, false
		}
		limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusConflict, map[string]string{
				"code":    "InvalidOrUnrecognizedParameter",
				"message": "You must pass a non-negative offset.",
			})
			return 0, 0, false
		}
		offset = n
	}
	return limit, offset, true
}

func window(n, offset, limit int) [2]int {
	start := offset
	if start > n {
		start = n
	}
	end := start + limit
	if end > n {
		end = n
	}
	return [2]int{start, end}
}

func characterJSON(c Character) map[string]any {
	return map[string]any{
		"id":     c.ID,
		"name":   c.Name,
		"comics": map[string]any{"available": c.Comics},
	}
}

func envelope(offset, limit, total int, results []map[string]any) map[string]any {
	return map[string]any{
		"code":   200,
		"status": "Ok",
		"data": map[string]any{
			"offset":  offset,
			"limit":   limit,
			"total":   total,
			"count":   len(results),
			"results": results,
		},
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// SampleCharacters is a small data set shared by tests.
func SampleCharacters() []Character {
	return []Character{
		{ID: 1009610, Name: "Spider-Man", Comics: 2572},
		{ID: 1009368, Name: "Iron Man", Comics: 2411},
		{ID: 1009608, Name: "Spider-Woman", Comics: 310},
		{ID: 1009609, Name: "Spider-Girl (May Parker)", Comics: 139},
		{ID: 1010727, Name: "Spider Man (Ultimate)", Comics: 80},
		{ID: 1009351, Name: "Hulk", Comics: 1646},
		{ID: 1009220, Name: "Captain America", Comics: 2319},
	}
}

// NumberedCharacters returns n characters named "Hero 0001".."Hero n".
func NumberedCharacters(n int) []Character {
	chars := make([]Character, n)
	for i := range chars {
		chars[i] = Character{
			ID:     2000000 + i,
			Name:   "Hero " + leftPad(strconv.Itoa(i+1), 4),
			Comics: i,
		}
	}
	return chars
}

func leftPad(s string, width int) string {
	for len(s) < width {
		s = "0" + s
	}
	return s
}
