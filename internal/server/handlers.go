package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/marketiq/internal/assistant"
	"github.com/hyperjump/marketiq/internal/indexer"
	"github.com/hyperjump/marketiq/internal/models"
	"github.com/hyperjump/marketiq/internal/storage"
)

const defaultLookupTopK = 5

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req models.SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		s.respondError(w, http.StatusBadRequest, "Query is required")
		return
	}
	s.logger.Debug("search request", zap.String("query", req.Query))
	env := s.assistant.Search(r.Context(), &req)
	if !env.Success {
		s.respondJSON(w, http.StatusInternalServerError, env)
		return
	}
	s.respondJSON(w, http.StatusOK, env)
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if strings.TrimSpace(q) == "" {
		s.respondError(w, http.StatusBadRequest, "q is required")
		return
	}
	s.respondJSON(w, http.StatusOK, s.assistant.Analyze(q))
}

func (s *Server) handlePrompts(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"prompts": s.assistant.SuggestedPrompts()})
}

func (s *Server) handleCompanies(w http.ResponseWriter, r *http.Request) {
	companies, err := s.assistant.Companies(r.Context())
	if err != nil {
		s.fail(w, "list companies", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"companies": companies})
}

func (s *Server) handleSearchCompanies(w http.ResponseWriter, r *http.Request) {
	query, ticker, topK, ok := s.lookupParams(w, r)
	if !ok {
		return
	}
	hits, err := s.assistant.SearchCompanies(r.Context(), query, ticker, topK)
	if err != nil {
		s.fail(w, "search companies", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"results": hits})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	metrics, err := s.assistant.Metrics(r.Context(), r.URL.Query().Get("ticker"))
	if err != nil {
		s.fail(w, "list metrics", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"metrics": metrics})
}

func (s *Server) handleSearchMetrics(w http.ResponseWriter, r *http.Request) {
	query, ticker, topK, ok := s.lookupParams(w, r)
	if !ok {
		return
	}
	hits, err := s.assistant.SearchMetrics(r.Context(), query, ticker, topK)
	if err != nil {
		s.fail(w, "search metrics", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"results": hits})
}

// lookupParams reads q, ticker and top_k for the company and metric searches.
func (s *Server) lookupParams(w http.ResponseWriter, r *http.Request) (query, ticker string, topK int, ok bool) {
	params := r.URL.Query()
	query = strings.TrimSpace(params.Get("q"))
	if query == "" {
		s.respondError(w, http.StatusBadRequest, "q is required")
		return "", "", 0, false
	}
	topK = defaultLookupTopK
	if v := params.Get("top_k"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid top_k")
			return "", "", 0, false
		}
		topK = n
	}
	return query, params.Get("ticker"), topK, true
}

type compareRequest struct {
	Tickers []string `json:"tickers"`
}

func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	var req compareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	comparison, err := s.assistant.Compare(r.Context(), req.Tickers)
	if errors.Is(err, assistant.ErrNoTickers) {
		s.respondError(w, http.StatusBadRequest, "At least one ticker is required")
		return
	}
	if err != nil {
		s.fail(w, "compare", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"comparison": comparison})
}

func (s *Server) handleRecentFilings(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.respondError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	filings, err := s.assistant.RecentFilings(r.Context(), limit)
	if err != nil {
		s.fail(w, "recent filings", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"filings": filings})
}

func (s *Server) handleIndexDocument(w http.ResponseWriter, r *http.Request) {
	var input models.DocumentInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("index document request", zap.String("id", input.ID), zap.String("ticker", input.Ticker))
	doc, stats, err := s.indexer.IndexDocument(r.Context(), &input)
	if errors.Is(err, indexer.ErrInvalidDocument) {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		s.fail(w, "index document", err)
		return
	}
	s.respondJSON(w, http.StatusCreated, map[string]interface{}{
		"id":       doc.ID,
		"status":   "indexed",
		"sections": stats.Sections,
		"skipped":  stats.Skipped,
	})
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	doc, err := s.storage.GetDocument(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		s.respondError(w, http.StatusNotFound, "document not found")
		return
	}
	if err != nil {
		s.fail(w, "get document", err)
		return
	}
	s.respondJSON(w, http.StatusOK, doc)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.assistant.Status(r.Context())
	if err != nil {
		s.fail(w, "status", err)
		return
	}
	s.respondJSON(w, http.StatusOK, status)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) fail(w http.ResponseWriter, op string, err error) {
	s.logger.Error(op+" failed", zap.Error(err))
	status := http.StatusInternalServerError
	if errors.Is(err, storage.ErrUnavailable) {
		status = http.StatusServiceUnavailable
	}
	s.respondError(w, status, err.Error())
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
