package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/Jadaunkg/job-portal-crawler/internal/crawler"
	"github.com/Jadaunkg/job-portal-crawler/internal/model"
)

type detailRequest struct {
	URL         string `json:"url"`
	ContentType string `json:"content_type"`
}

type batchRequest struct {
	URLs        []string `json:"urls"`
	ContentType string   `json:"content_type"`
}

type detailResponse struct {
	Success      bool                `json:"success"`
	URL          string              `json:"url"`
	ContentType  model.ContentType   `json:"content_type,omitempty"`
	DetailedInfo *model.DetailedInfo `json:"detailed_info,omitempty"`
	Error        string              `json:"error,omitempty"`
}

type batchResponse struct {
	Total      int                       `json:"total"`
	Successful int                       `json:"successful"`
	Results    map[string]detailResponse `json:"results"`
}

func validURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func (s *Server) fetchDetails(w http.ResponseWriter, r *http.Request) {
	var req detailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if !validURL(req.URL) {
		writeError(w, http.StatusBadRequest, "url must be an absolute http(s) URL")
		return
	}
	hint, ok := model.ParseContentType(req.ContentType)
	if !ok {
		writeError(w, http.StatusBadRequest, "content_type must be job, result, admit_card or auto")
		return
	}

	resp, err := s.fetchOne(r, req.URL, hint)
	switch {
	case errors.Is(err, crawler.ErrEmptyPage):
		writeJSON(w, http.StatusUnprocessableEntity, resp)
	case err != nil:
		writeJSON(w, http.StatusBadGateway, resp)
	default:
		writeJSON(w, http.StatusOK, resp)
	}
}

func (s *Server) fetchDetailsBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if len(req.URLs) == 0 {
		writeError(w, http.StatusBadRequest, "urls required")
		return
	}
	if len(req.URLs) > maxBatchURLs {
		writeError(w, http.StatusBadRequest, "too many urls")
		return
	}
	hint, ok := model.ParseContentType(req.ContentType)
	if !ok {
		writeError(w, http.StatusBadRequest, "content_type must be job, result, admit_card or auto")
		return
	}

	out := batchResponse{Total: len(req.URLs), Results: make(map[string]detailResponse, len(req.URLs))}
	for _, u := range req.URLs {
		if r.Context().Err() != nil {
			break
		}
		if !validURL(u) {
			out.Results[u] = detailResponse{URL: u, Error: "invalid url"}
			continue
		}
		resp, _ := s.fetchOne(r, u, hint)
		if resp.Success {
			out.Successful++
		}
		out.Results[u] = resp
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) fetchOne(r *http.Request, pageURL string, hint model.ContentType) (detailResponse, error) {
	info, err := s.deps.Enricher.FetchDetails(r.Context(), pageURL, hint)
	if err != nil {
		return detailResponse{URL: pageURL, Error: err.Error()}, err
	}
	return detailResponse{Success: true, URL: pageURL, ContentType: info.ContentType, DetailedInfo: info}, nil
}
