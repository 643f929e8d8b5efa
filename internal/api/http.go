package api

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net"
	"net/http"

	"github.com/SrJCBM/BDD-Avanzada/internal/feed"
	"github.com/SrJCBM/BDD-Avanzada/internal/store"
	"github.com/SrJCBM/BDD-Avanzada/internal/tables"
	"github.com/gorilla/mux"
)

// Version is reported by the service description endpoint.
const Version = "1.0.0"

const maxBodyBytes = 1 << 20

// Leadership is implemented by replicated stores whose followers must not
// take writes.
type Leadership interface {
	IsLeader() bool
	LeaderAddr() string
}

// Server exposes a tables.Service over HTTP.
type Server struct {
	Tables  *tables.Service
	Metrics *store.InstrumentedStore // optional, enables /_metrics
	Feed    *feed.Hub                // optional, enables /_feed
	Leader  Leadership               // optional, enables follower redirects
}

// NewServer creates a new HTTP server over the given service.
func NewServer(svc *tables.Service) *Server {
	return &Server{Tables: svc}
}

// Handler builds the router wrapped in the logging middleware.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	s.RegisterRoutes(r)
	return withRequestLog(r)
}

// RegisterRoutes registers all HTTP handlers on the given router.
// Fixed paths are registered before the table patterns they would
// otherwise collide with.
func (s *Server) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/seed", s.leaderOnly(s.wrap(s.handleSeed))).Methods(http.MethodPost)
	if s.Metrics != nil {
		r.Handle("/_metrics", MetricsHandler(s.Metrics)).Methods(http.MethodGet)
	}
	if s.Feed != nil {
		r.HandleFunc("/_feed", s.Feed.ServeWs).Methods(http.MethodGet)
	}
	r.HandleFunc("/{table}", s.leaderOnly(s.wrap(s.handlePut))).Methods(http.MethodPost)
	r.HandleFunc("/{table}/{id}", s.wrap(s.handleGet)).Methods(http.MethodGet)
	r.HandleFunc("/{table}", s.wrap(s.handleList)).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "Route not found"})
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "Method not allowed"})
	})
}

// handlerFunc is a route body. It returns the status and payload for the
// success case, or an error that wrap translates into an error envelope.
type handlerFunc func(r *http.Request) (int, interface{}, error)

func (s *Server) wrap(fn handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, body, err := fn(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, status, body)
	}
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Detail  string `json:"detail,omitempty"`
	Table   string `json:"table,omitempty"`
	ID      string `json:"id,omitempty"`
}

// statusFor maps an error kind to its HTTP status.
func statusFor(kind tables.Kind) int {
	switch kind {
	case tables.KindInvalid:
		return http.StatusBadRequest
	case tables.KindNotFound:
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

// writeError is the single translation from handler errors to responses.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var te *tables.Error
	if !errors.As(err, &te) {
		te = &tables.Error{Kind: tables.KindInternal, Summary: "Internal server error", Err: err}
	}

	resp := errorResponse{Error: te.Summary, Detail: te.Detail()}
	if te.Kind == tables.KindNotFound {
		resp.Table, resp.ID = te.Table, te.ID
	}
	if te.Kind == tables.KindInternal {
		log.Printf("Error in %s %s [%s]: %v", r.Method, r.URL.Path, requestID(r), err)
	}
	writeJSON(w, statusFor(te.Kind), resp)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}

type indexResponse struct {
	Message   string            `json:"message"`
	Version   string            `json:"version"`
	Endpoints map[string]string `json:"endpoints"`
}

// handleIndex handles GET / with a description of the service.
func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, indexResponse{
		Message: "Tables API - key-value store",
		Version: Version,
		Endpoints: map[string]string{
			"seed": "POST /seed - Bulk load from JSON",
			"save": "POST /:table - Save a record",
			"get":  "GET /:table/:id - Get a record",
			"list": "GET /:table - List every record",
		},
	})
}

type seedResponse struct {
	Success      bool     `json:"success"`
	Message      string   `json:"message"`
	Tables       []string `json:"tables"`
	TotalRecords int      `json:"totalRecords"`
	ElapsedMs    int64    `json:"elapsedMs"`
}

// handleSeed handles POST /seed.
func (s *Server) handleSeed(r *http.Request) (int, interface{}, error) {
	res, err := s.Tables.Seed(r.Context())
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, seedResponse{
		Success:      true,
		Message:      "Data loaded successfully",
		Tables:       res.Tables,
		TotalRecords: res.TotalRecords,
		ElapsedMs:    res.Elapsed.Milliseconds(),
	}, nil
}

type putResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Table   string          `json:"table"`
	ID      json.RawMessage `json:"id"`
	Data    tables.Record   `json:"data"`
}

// handlePut handles POST /{table} with a JSON record body.
// Inserts and replacements both answer 201.
func (s *Server) handlePut(r *http.Request) (int, interface{}, error) {
	table := mux.Vars(r)["table"]
	body, err := io.ReadAll(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	if err != nil {
		return 0, nil, &tables.Error{Kind: tables.KindInvalid, Summary: "Invalid JSON body", Table: table, Err: err}
	}

	res, err := s.Tables.Put(r.Context(), table, body)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusCreated, putResponse{
		Success: true,
		Message: "Record saved successfully",
		Table:   res.Table,
		ID:      res.ID,
		Data:    res.Record,
	}, nil
}

type getResponse struct {
	Success bool          `json:"success"`
	Table   string        `json:"table"`
	ID      string        `json:"id"`
	Data    tables.Record `json:"data"`
}

// handleGet handles GET /{table}/{id}.
func (s *Server) handleGet(r *http.Request) (int, interface{}, error) {
	vars := mux.Vars(r)
	table, id := vars["table"], vars["id"]

	rec, err := s.Tables.Get(r.Context(), table, id)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, getResponse{Success: true, Table: table, ID: id, Data: rec}, nil
}

type listResponse struct {
	Success bool            `json:"success"`
	Table   string          `json:"table"`
	Count   int             `json:"count"`
	Data    []tables.Record `json:"data"`
}

// handleList handles GET /{table}.
func (s *Server) handleList(r *http.Request) (int, interface{}, error) {
	table := mux.Vars(r)["table"]

	records, err := s.Tables.List(r.Context(), table)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, listResponse{Success: true, Table: table, Count: len(records), Data: records}, nil
}

// leaderOnly redirects writes arriving at a Raft follower to the leader.
func (s *Server) leaderOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.Leader == nil || s.Leader.IsLeader() {
			next(w, r)
			return
		}

		leader := s.Leader.LeaderAddr()
		if leader == "" {
			writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "Not leader and no leader known"})
			return
		}
		w.Header().Set("Location", leaderURL(leader, r))
		writeJSON(w, http.StatusTemporaryRedirect, errorResponse{Error: "Not leader. Redirect to leader.", Detail: leader})
	}
}

// leaderURL points at the leader's HTTP API, assumed to listen on the same
// port as this node.
func leaderURL(raftAddr string, r *http.Request) string {
	host, _, err := net.SplitHostPort(raftAddr)
	if err != nil {
		host = raftAddr
	}
	port := "80"
	if _, p, err := net.SplitHostPort(r.Host); err == nil {
		port = p
	}
	return "http://" + net.JoinHostPort(host, port) + r.URL.RequestURI()
}
