package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"sharddb/pkg/cluster"
	"sharddb/pkg/dberrors"
	"sharddb/pkg/executor"
	"sharddb/pkg/store"
	"sharddb/pkg/store/remote"
	"sharddb/pkg/types"
)

const (
	contentTypeJSON        = "application/json"
	defaultHTTPPort        = "8080"
	defaultShutdownTimeout = time.Second * 5
)

// iShardedDB is the sharded layer the gateway endpoints are served from.
type iShardedDB interface {
	Router() *cluster.Router
	Setup(ctx context.Context) *cluster.FanOut
	Insert(ctx context.Context, r types.Record) (executor.Outcome, error)
	QueryAll(ctx context.Context) *cluster.FanOut
}

type ServerOption func(*Server)

// WithLocalShard turns on node mode: the internal endpoints execute
// statements against shard through backend.
func WithLocalShard(backend store.Backend, shard types.Descriptor) ServerOption {
	return func(s *Server) {
		s.local = &localShard{backend: backend, shard: shard}
	}
}

func WithServerLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

func WithShutdownTimeout(d time.Duration) ServerOption {
	return func(s *Server) {
		if d > 0 {
			s.shutdownTimeout = d
		}
	}
}

// Server represents the HTTP server in front of the sharded database.
type Server struct {
	db              iShardedDB
	local           *localShard
	logger          *slog.Logger
	shutdownTimeout time.Duration
	httpServer      *http.Server
	URL             string
	addr            string
}

// NewServer creates a new server instance
func NewServer(db iShardedDB, port string, opts ...ServerOption) *Server {
	if port == "" {
		port = defaultHTTPPort
	}
	s := &Server{
		db:              db,
		logger:          slog.Default(),
		shutdownTimeout: defaultShutdownTimeout,
		URL:             "http://localhost:" + port,
		addr:            ":" + port,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "http")
	return s
}

// Start binds the listen address and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: time.Second,
	}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server error", "error", err)
		}
	}()

	s.logger.Info("HTTP server started", "addr", s.URL, "node", s.local != nil)
	return nil
}

// Stop stops the server
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}
	return nil
}

// Handler builds the chi router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/shards", s.handleShards)
		r.Get("/route", s.handleRoute)
		r.Post("/setup", s.handleSetup)
		r.Put("/users", s.handleInsert)
		r.Get("/users", s.handleQueryAll)

		if s.local != nil {
			r.Post("/internal/exec", s.handleExec)
			r.Post("/internal/query", s.handleQuery)
		}
	})

	return r
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Warn("Error encoding response", "error", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, NewOKResponse())
}

func (s *Server) handleShards(w http.ResponseWriter, r *http.Request) {
	resp := NewSuccessResponse()
	for _, d := range s.db.Router().Topology().Descriptors() {
		resp.Shards = append(resp.Shards, ShardResult{ID: d.ID, Driver: d.Driver, Schema: d.Schema})
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRoute(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("id")
	if raw == "" {
		s.writeJSON(w, http.StatusBadRequest, NewErrorResponse("Missing id"))
		return
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, NewErrorResponse("Invalid id"))
		return
	}

	shard, err := s.db.Router().Resolve(id)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, NewErrorResponse(err.Error()))
		return
	}
	s.writeJSON(w, http.StatusOK, NewShardResponse(shard))
}

func (s *Server) handleSetup(w http.ResponseWriter, r *http.Request) {
	s.writeFanOut(w, s.db.Setup(r.Context()), false)
}

func (s *Server) handleQueryAll(w http.ResponseWriter, r *http.Request) {
	s.writeFanOut(w, s.db.QueryAll(r.Context()), true)
}

func (s *Server) handleInsert(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.writeJSON(w, http.StatusBadRequest, NewErrorResponse("Failed to parse form"))
		return
	}

	rawID, rawAge := r.FormValue("id"), r.FormValue("age")
	if rawID == "" || rawAge == "" {
		s.writeJSON(w, http.StatusBadRequest, NewErrorResponse("Missing id or age"))
		return
	}
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, NewErrorResponse("Invalid id"))
		return
	}
	age, err := strconv.ParseInt(rawAge, 10, 64)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, NewErrorResponse("Invalid age"))
		return
	}

	out, err := s.db.Insert(r.Context(), types.Record{ID: id, Age: age})
	if err != nil {
		resp := NewErrorResponse(err.Error())
		if se, ok := dberrors.AsShardError(err); ok {
			resp.Shard = se.Shard
		}
		s.writeJSON(w, insertStatus(err), resp)
		return
	}
	s.writeJSON(w, http.StatusOK, NewShardResponse(out.Shard))
}

func insertStatus(err error) int {
	switch {
	case errors.Is(err, dberrors.ErrUnresolvableKey):
		return http.StatusBadRequest
	case errors.Is(err, dberrors.ErrDuplicateKey):
		return http.StatusConflict
	}
	if _, ok := dberrors.AsShardError(err); ok {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// writeFanOut reports a fan-out shard by shard. A partial result is still a
// 200; only a fan-out where every shard failed is an error.
func (s *Server) writeFanOut(w http.ResponseWriter, f *cluster.FanOut, withRecords bool) {
	resp := Response{FanOut: f.ID}
	for _, id := range f.Shards() {
		res := ShardResult{ID: id}
		if o, ok := f.Outcome(id); ok {
			res.Status = StatusSuccess
			res.RowsAffected = o.RowsAffected
			res.Records = o.Len()
		} else if se := f.Error(id); se != nil {
			res.Status = StatusError
			res.Error = se.Error()
		}
		resp.Shards = append(resp.Shards, res)
	}
	if withRecords {
		resp.Records = slices.Collect(f.Records())
	}

	status := http.StatusOK
	switch {
	case f.Complete():
		resp.Status = StatusSuccess
	case len(f.OK()) == 0:
		resp.Status = StatusError
		resp.Error = f.Err().Error()
		status = http.StatusServiceUnavailable
	default:
		resp.Status = StatusPartial
	}
	s.writeJSON(w, status, resp)
}

// localShard is the shard a node process serves to gateways.
type localShard struct {
	backend store.Backend
	shard   types.Descriptor
}

func (s *Server) handleExec(w http.ResponseWriter, r *http.Request) {
	stmt, ok := s.decodeStatement(w, r)
	if !ok {
		return
	}

	conn, err := s.local.backend.Open(r.Context(), s.local.shard)
	if err != nil {
		s.writeNodeError(w, err)
		return
	}
	defer s.release(conn)

	n, err := conn.Exec(r.Context(), stmt)
	if err != nil {
		s.writeNodeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, remote.Response{Status: string(StatusSuccess), RowsAffected: n})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	stmt, ok := s.decodeStatement(w, r)
	if !ok {
		return
	}

	conn, err := s.local.backend.Open(r.Context(), s.local.shard)
	if err != nil {
		s.writeNodeError(w, err)
		return
	}
	defer s.release(conn)

	rows, err := conn.Query(r.Context(), stmt)
	if err != nil {
		s.writeNodeError(w, err)
		return
	}
	data, err := store.Collect(rows, len(stmt.Columns))
	if err != nil {
		s.writeNodeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, remote.Response{Status: string(StatusSuccess), Rows: data})
}

// decodeStatement reads a remote.Request. Only structured statements are
// accepted. Numeric arguments are decoded as int64 so they reach the backend
// the way a local caller would pass them.
func (s *Server) decodeStatement(w http.ResponseWriter, r *http.Request) (store.Statement, bool) {
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()

	var req remote.Request
	if err := dec.Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, remote.Response{Status: string(StatusError), Error: err.Error()})
		return store.Statement{}, false
	}
	if req.Statement.Kind == store.KindRaw {
		s.writeJSON(w, http.StatusBadRequest, remote.Response{Status: string(StatusError), Error: "raw statements are not accepted"})
		return store.Statement{}, false
	}
	for i, arg := range req.Statement.Args {
		if _, ok := arg.(json.Number); !ok {
			continue
		}
		v, err := store.Int64(arg)
		if err != nil {
			s.writeJSON(w, http.StatusBadRequest, remote.Response{Status: string(StatusError), Error: err.Error()})
			return store.Statement{}, false
		}
		req.Statement.Args[i] = v
	}
	return req.Statement, true
}

func (s *Server) writeNodeError(w http.ResponseWriter, err error) {
	status := remote.StatusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("local shard operation failed", "shard", s.local.shard.ID, "error", err)
	}
	s.writeJSON(w, status, remote.Response{Status: string(StatusError), Error: err.Error()})
}

func (s *Server) release(conn store.Conn) {
	if err := conn.Close(); err != nil {
		s.logger.Warn("failed to close local shard connection", "shard", s.local.shard.ID, "error", err)
	}
}
