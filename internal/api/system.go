package api

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"strconv"

	"github.com/Jadaunkg/job-portal-crawler/internal/refresh"
)

type portalInfo struct {
	Name       string   `json:"name"`
	BaseURL    string   `json:"base_url"`
	Enabled    bool     `json:"enabled"`
	FetchMode  string   `json:"fetch_mode"`
	Categories []string `json:"categories"`
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	now := s.deps.Clock.Now()
	resp := map[string]any{
		"status":         "running",
		"version":        s.deps.Version,
		"uptime_seconds": int64(now.Sub(s.started).Seconds()),
		"refresh":        s.deps.Refresher.Status().State,
		"last_crawl":     nil,
	}
	if last, err := s.deps.Reader.History(r.Context(), 1); err == nil && len(last) > 0 {
		resp["last_crawl"] = last[0].CrawlTime
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	st, err := s.deps.Reader.Statistics(r.Context())
	if err != nil {
		s.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) statsByPortal(w http.ResponseWriter, r *http.Request) {
	st, err := s.deps.Reader.PortalStatistics(r.Context())
	if err != nil {
		s.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"portals": st})
}

func (s *Server) portals(w http.ResponseWriter, _ *http.Request) {
	out := make([]portalInfo, 0, len(s.deps.Portals))
	for _, p := range s.deps.Portals {
		info := portalInfo{Name: p.Name, BaseURL: p.BaseURL, Enabled: p.Enabled, FetchMode: p.FetchMode, Categories: []string{}}
		for name, cat := range p.Categories {
			if cat.Enabled {
				info.Categories = append(info.Categories, name)
			}
		}
		sort.Strings(info.Categories)
		out = append(out, info)
	}
	writeJSON(w, http.StatusOK, map[string]any{"total": len(out), "portals": out})
}

func (s *Server) history(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxLimit {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 100")
			return
		}
		limit = n
	}
	items, err := s.deps.Reader.History(r.Context(), limit)
	if err != nil {
		s.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"total": len(items), "items": items})
}

func (s *Server) triggerRefresh(w http.ResponseWriter, r *http.Request) {
	// The run outlives the request; Trigger detaches it from cancellation.
	err := s.deps.Refresher.Trigger(context.WithoutCancel(r.Context()), "api")
	if errors.Is(err, refresh.ErrInProgress) {
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":  err.Error(),
			"status": s.deps.Refresher.Status(),
		})
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"message":         "refresh started in background",
		"status":          s.deps.Refresher.Status(),
		"check_status_at": "/api/v1/refresh/status",
	})
}

func (s *Server) refreshStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Refresher.Status())
}

func (s *Server) resetRefresh(w http.ResponseWriter, _ *http.Request) {
	if err := s.deps.Refresher.Reset(); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(refresh.StateIdle), "message": "status reset"})
}
