// Package server exposes grid sessions and stateless page queries over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gnemet/tablegrid"
	"github.com/gnemet/tablegrid/internal/pages"
	"github.com/gnemet/tablegrid/internal/session"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SeedLoader loads a page's records from its configured source table.
type SeedLoader interface {
	Load(ctx context.Context, def *tablegrid.Definition) ([]tablegrid.Record, error)
}

// Fetcher is a SeedLoader that can also page through its table directly. Stateless
// list requests use it instead of filtering the seed in memory.
type Fetcher interface {
	Fetch(ctx context.Context, def *tablegrid.Definition, p tablegrid.RequestParams) (*tablegrid.TableResult, error)
}

type Options struct {
	Catalog  *pages.Catalog
	Pool     *session.Pool
	Seeds    SeedLoader
	Language string
	Logger   *slog.Logger
}

type Server struct {
	catalog *pages.Catalog
	pool    *session.Pool
	seeds   SeedLoader
	lang    string
	logger  *slog.Logger
	router  *mux.Router
}

func New(opts Options) *Server {
	s := &Server{
		catalog: opts.Catalog,
		pool:    opts.Pool,
		seeds:   opts.Seeds,
		lang:    opts.Language,
		logger:  opts.Logger,
		router:  mux.NewRouter(),
	}
	if s.lang == "" {
		s.lang = "en"
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	api := s.router
	api.Use(instrument)
	api.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api.HandleFunc("/pages", s.listPages).Methods(http.MethodGet)
	api.HandleFunc("/pages/{page}/list", s.queryPage).Methods(http.MethodGet)

	api.HandleFunc("/sessions", s.openSession).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{sid}", s.getSession).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{sid}", s.closeSession).Methods(http.MethodDelete)
	sess := api.PathPrefix("/sessions/{sid}").Subrouter()
	sess.HandleFunc("/search", s.search).Methods(http.MethodPost)
	sess.HandleFunc("/filter", s.filter).Methods(http.MethodPost)
	sess.HandleFunc("/quick/{name}", s.quickFilter).Methods(http.MethodPost)
	sess.HandleFunc("/clear", s.clear).Methods(http.MethodPost)
	sess.HandleFunc("/sort/{column}", s.sortBy).Methods(http.MethodPost)
	sess.HandleFunc("/page/{n:[0-9-]+}", s.goToPage).Methods(http.MethodPost)
	sess.HandleFunc("/page-size/{n:[0-9-]+}", s.setPageSize).Methods(http.MethodPost)
	sess.HandleFunc("/selection", s.toggleSelection).Methods(http.MethodPost)
	sess.HandleFunc("/selection/all", s.selectAll).Methods(http.MethodPost)
	sess.HandleFunc("/breakdown/{field}", s.breakdown).Methods(http.MethodGet)

	sess.HandleFunc("/records", s.createRecord).Methods(http.MethodPost)
	sess.HandleFunc("/records", s.deleteSelected).Methods(http.MethodDelete)
	sess.HandleFunc("/records/{id:[0-9]+}", s.updateRecord).Methods(http.MethodPut)
	sess.HandleFunc("/records/{id:[0-9]+}", s.deleteRecord).Methods(http.MethodDelete)

	sess.HandleFunc("/export.csv", s.exportCSV).Methods(http.MethodGet)
	sess.HandleFunc("/export.xlsx", s.exportXLSX).Methods(http.MethodGet)

	sess.HandleFunc("/searches", s.listSearches).Methods(http.MethodGet)
	sess.HandleFunc("/searches", s.saveSearch).Methods(http.MethodPost)
	sess.HandleFunc("/searches/{name}/apply", s.applySearch).Methods(http.MethodPost)
	sess.HandleFunc("/searches/{name}", s.deleteSearch).Methods(http.MethodDelete)
}

type apiError struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

var errBadRequest = errors.New("bad request")

// writeError maps domain errors onto status codes.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var ve *tablegrid.ValidationError
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, apiError{Error: "validation failed", Fields: ve.Fields})
	case errors.Is(err, errBadRequest):
		writeJSON(w, http.StatusBadRequest, apiError{Error: err.Error()})
	case errors.Is(err, session.ErrNotFound), errors.Is(err, tablegrid.ErrUnknownQuickFilter), errors.Is(err, errNoSuchPage), errors.Is(err, errNoSuchSearch):
		writeJSON(w, http.StatusNotFound, apiError{Error: err.Error()})
	case errors.Is(err, tablegrid.ErrReadOnly):
		writeJSON(w, http.StatusConflict, apiError{Error: err.Error()})
	case errors.Is(err, errNoLibrary):
		writeJSON(w, http.StatusNotImplemented, apiError{Error: err.Error()})
	case errors.Is(err, session.ErrCapacity):
		writeJSON(w, http.StatusServiceUnavailable, apiError{Error: err.Error()})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeJSON(w, http.StatusGatewayTimeout, apiError{Error: "request abandoned before the change completed"})
	default:
		s.logger.Error("Request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, apiError{Error: "internal error"})
	}
}

func decode(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}
