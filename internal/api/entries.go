package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/Jadaunkg/job-portal-crawler/internal/model"
	"github.com/Jadaunkg/job-portal-crawler/internal/store"
)

const (
	defaultLimit = 10
	maxLimit     = 100
	dateLayout   = "2006-01-02"
)

// pathSegment is the URL form of a category.
func pathSegment(c model.Category) string {
	return strings.ReplaceAll(string(c), "_", "-")
}

// entryQuery filters and pages a category listing.
type entryQuery struct {
	Keyword     string `json:"keyword"`
	Portal      string `json:"portal"`
	StartDate   string `json:"start_date"`
	EndDate     string `json:"end_date"`
	DetailsOnly bool   `json:"details_only"`
	Page        int    `json:"page"`
	Limit       int    `json:"limit"`

	start, end time.Time
}

type pageResponse struct {
	Total      int           `json:"total"`
	Page       int           `json:"page"`
	Limit      int           `json:"limit"`
	TotalPages int           `json:"total_pages"`
	Items      []model.Entry `json:"items"`
}

func queryFromURL(r *http.Request) (entryQuery, error) {
	v := r.URL.Query()
	q := entryQuery{
		Keyword:   v.Get("keyword"),
		Portal:    v.Get("portal"),
		StartDate: v.Get("start_date"),
		EndDate:   v.Get("end_date"),
	}
	var err error
	if q.Page, err = intParam(v.Get("page"), 1); err != nil {
		return q, errors.New("page must be an integer")
	}
	if q.Limit, err = intParam(v.Get("limit"), defaultLimit); err != nil {
		return q, errors.New("limit must be an integer")
	}
	if raw := v.Get("details_only"); raw != "" {
		if q.DetailsOnly, err = strconv.ParseBool(raw); err != nil {
			return q, errors.New("details_only must be a boolean")
		}
	}
	return q, q.normalize()
}

func intParam(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

func (q *entryQuery) normalize() error {
	if q.Page == 0 {
		q.Page = 1
	}
	if q.Limit == 0 {
		q.Limit = defaultLimit
	}
	if q.Page < 1 {
		return errors.New("page must be >= 1")
	}
	if q.Limit < 1 || q.Limit > maxLimit {
		return errors.New("limit must be between 1 and 100")
	}
	q.Keyword = strings.ToLower(strings.TrimSpace(q.Keyword))
	var err error
	if q.StartDate != "" {
		if q.start, err = time.Parse(dateLayout, q.StartDate); err != nil {
			return errors.New("start_date must be YYYY-MM-DD")
		}
	}
	if q.EndDate != "" {
		if q.end, err = time.Parse(dateLayout, q.EndDate); err != nil {
			return errors.New("end_date must be YYYY-MM-DD")
		}
	}
	return nil
}

// match applies every filter; dates compare the UTC day of discovered_at and
// both bounds are inclusive.
func (q entryQuery) match(e model.Entry) bool {
	b := e.Common()
	if q.Keyword != "" && !strings.Contains(strings.ToLower(b.Title), q.Keyword) {
		return false
	}
	if q.Portal != "" && !strings.EqualFold(b.PortalName, q.Portal) {
		return false
	}
	if !q.start.IsZero() || !q.end.IsZero() {
		day := b.DiscoveredAt.UTC().Truncate(24 * time.Hour)
		if !q.start.IsZero() && day.Before(q.start) {
			return false
		}
		if !q.end.IsZero() && day.After(q.end) {
			return false
		}
	}
	if q.DetailsOnly {
		d, ok := e.(model.Detailed)
		if !ok || !d.HasDetails() {
			return false
		}
	}
	return true
}

func (q entryQuery) apply(entries []model.Entry) pageResponse {
	matched := make([]model.Entry, 0, len(entries))
	for _, e := range entries {
		if q.match(e) {
			matched = append(matched, e)
		}
	}
	resp := pageResponse{
		Total:      len(matched),
		Page:       q.Page,
		Limit:      q.Limit,
		TotalPages: (len(matched) + q.Limit - 1) / q.Limit,
		Items:      []model.Entry{},
	}
	from := (q.Page - 1) * q.Limit
	if from < len(matched) {
		to := min(from+q.Limit, len(matched))
		resp.Items = matched[from:to]
	}
	return resp
}

func (s *Server) listEntries(c model.Category) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q, err := queryFromURL(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.writePage(w, r, c, q)
	}
}

func (s *Server) searchEntries(c model.Category) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var q entryQuery
		if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON")
			return
		}
		if err := q.normalize(); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.writePage(w, r, c, q)
	}
}

func (s *Server) writePage(w http.ResponseWriter, r *http.Request, c model.Category, q entryQuery) {
	entries, err := s.deps.Reader.Entries(r.Context(), c, 0)
	if err != nil {
		s.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, q.apply(entries))
}

func (s *Server) getEntry(c model.Category) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entry, err := s.deps.Reader.Lookup(r.Context(), c, chi.URLParam(r, "id"))
		if err != nil {
			s.storeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, entry)
	}
}

func (s *Server) getEntryDetails(c model.Category) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		entry, err := s.deps.Reader.Lookup(r.Context(), c, id)
		if err != nil {
			s.storeError(w, err)
			return
		}
		if !entry.HasDetails() {
			writeJSON(w, http.StatusPartialContent, map[string]any{
				"id":      id,
				"message": "details not yet crawled; POST to this path to fetch them",
				"item":    entry,
			})
			return
		}
		writeJSON(w, http.StatusOK, entry)
	}
}

func (s *Server) enrichEntry(c model.Category) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		info, err := s.deps.Enricher.EnrichOne(r.Context(), c, id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrUnknownCategory) {
				s.storeError(w, err)
				return
			}
			writeError(w, http.StatusBadGateway, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"id": id, "detailed_info": info})
	}
}

func (s *Server) storeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, store.ErrUnknownCategory):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrLockTimeout):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		s.logger.Error("store read failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "store read failed")
	}
}
