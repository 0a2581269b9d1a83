package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/Sternrassler/marvel-client/pkg/catalog"
)

// DefaultPageLimit applies to listing endpoints without a limit parameter.
const DefaultPageLimit = 10

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Marvel API app",
		"version": s.opts.Version,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.opts.Ready != nil {
		if err := s.opts.Ready.Ping(r.Context()); err != nil {
			s.logger.Warn().Err(err).Msg("Readiness check failed")
			http.Error(w, "Not ready", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// pageRequest reads limit and offset for listing endpoints.
func pageRequest(r *http.Request) (catalog.PageRequest, error) {
	limit, err := intParam(r, "limit", DefaultPageLimit, 1, catalog.MaxPageSize)
	if err != nil {
		return catalog.PageRequest{}, err
	}
	offset, err := intParam(r, "offset", 0, 0, 0)
	if err != nil {
		return catalog.PageRequest{}, err
	}
	return catalog.PageRequest{Limit: limit, Offset: offset}, nil
}

type listFunc func(context.Context, catalog.PageRequest) (json.RawMessage, error)

func (s *Server) serveList(w http.ResponseWriter, r *http.Request, list listFunc) {
	page, err := pageRequest(r)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}

	body, err := list(r.Context(), page)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeRaw(w, http.StatusOK, body)
}

func (s *Server) handleListCharacters(w http.ResponseWriter, r *http.Request) {
	s.serveList(w, r, s.catalog.ListCharacters)
}

func (s *Server) handleListComics(w http.ResponseWriter, r *http.Request) {
	s.serveList(w, r, s.catalog.ListComics)
}

func (s *Server) handleListSeries(w http.ResponseWriter, r *http.Request) {
	s.serveList(w, r, s.catalog.ListSeries)
}

// handleCharacter serves /characters/{id}: a numeric segment is an ID
// lookup, anything else a name search.
func (s *Server) handleCharacter(w http.ResponseWriter, r *http.Request) {
	segment := r.PathValue("id")

	id, err := strconv.Atoi(segment)
	if err != nil {
		s.serveSearch(w, r, segment, "")
		return
	}

	body, err := s.catalog.GetCharacter(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeRaw(w, http.StatusOK, body)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	s.serveSearch(w, r, r.PathValue("name"), "")
}

func (s *Server) handleCharacterComics(w http.ResponseWriter, r *http.Request) {
	s.serveSearch(w, r, r.PathValue("name"), "Character not found")
}

// serveSearch runs a name search. notFound replaces the default 404 detail
// when set.
func (s *Server) serveSearch(w http.ResponseWriter, r *http.Request, name, notFound string) {
	result, err := s.catalog.SearchCharacters(r.Context(), name, catalog.MaxPageSize)
	if err != nil {
		if notFound != "" && errors.Is(err, catalog.ErrNotFound) {
			writeDetail(w, http.StatusNotFound, notFound)
			return
		}
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleAggregate(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", s.opts.DefaultAggregateLimit, 1, 0)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}
	offset, err := intParam(r, "offset", 0, 0, 0)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.aggregator.Aggregate(r.Context(), limit, offset)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
