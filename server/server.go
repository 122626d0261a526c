// Package server provides the HTTP/JSON admin and query API of the query
// service: stats, Prometheus metrics, hop traces, and GO execution.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	hopdb "github.com/hopdb/hopdb"
)

// ---------------------------------------------------------------------------
// Server
// ---------------------------------------------------------------------------

// Deps wires the query service's collaborators into the HTTP API.
type Deps struct {
	Space   hopdb.GraphSpaceID
	Storage hopdb.StorageClient
	Schema  hopdb.SchemaRegistry
	Runner  *hopdb.Runner
	Vars    *hopdb.VariableHolder
	Config  hopdb.Config
	Logger  *slog.Logger
	Metrics *hopdb.Metrics
	Trace   *hopdb.TraceLog
}

// Server exposes the query service over HTTP/JSON.
type Server struct {
	deps Deps
	mux  *http.ServeMux
}

// New creates a ready-to-use Server.
func New(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	s := &Server{deps: deps}
	s.mux = http.NewServeMux()
	s.routes()
	return s
}

// ServeHTTP implements http.Handler with CORS headers.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
	if r.Method == http.MethodOptions {
		return
	}
	s.mux.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /api/stats", s.handleStats)
	s.mux.HandleFunc("GET /api/trace", s.handleTrace)
	s.mux.HandleFunc("GET /metrics", s.handleMetrics)
	s.mux.HandleFunc("POST /api/query", s.handleQuery)
}

// ---------------------------------------------------------------------------
// Handlers
// ---------------------------------------------------------------------------

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Metrics.Snapshot())
}

func (s *Server) handleTrace(w http.ResponseWriter, r *http.Request) {
	n := 50
	if q := r.URL.Query().Get("n"); q != "" {
		if parsed, err := strconv.Atoi(q); err == nil {
			n = parsed
		}
	}
	var entries []hopdb.TraceEntry
	if s.deps.Trace != nil {
		entries = s.deps.Trace.Recent(n)
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	s.deps.Metrics.WritePrometheus(w)
}

// queryRequest is a JSON description of a GO statement. The interactive
// text form belongs to the shell and its parser, outside this module.
type queryRequest struct {
	Space     int32       `json:"space"`
	Steps     uint32      `json:"steps"`
	From      []int64     `json:"from"`
	Over      []string    `json:"over"`
	OverAll   bool        `json:"over_all"`
	Reversely bool        `json:"reversely"`
	Distinct  bool        `json:"distinct"`
	Yield     []yieldSpec `json:"yield"`
}

type yieldSpec struct {
	// Kind: edge_dst | edge_src | edge_rank | src_prop | dst_prop | edge_prop
	Kind  string `json:"kind"`
	Edge  string `json:"edge,omitempty"`
	Tag   string `json:"tag,omitempty"`
	Prop  string `json:"prop,omitempty"`
	Alias string `json:"alias,omitempty"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	sentence, err := buildSentence(&req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	space := s.deps.Space
	if req.Space != 0 {
		space = hopdb.GraphSpaceID(req.Space)
	}
	ectx := hopdb.NewExecutionContext(hopdb.ContextOptions{
		Space:   space,
		Storage: s.deps.Storage,
		Schema:  s.deps.Schema,
		Vars:    s.deps.Vars,
		Runner:  s.deps.Runner,
		Config:  s.deps.Config,
		Logger:  s.deps.Logger,
		Metrics: s.deps.Metrics,
		Trace:   s.deps.Trace,
	})

	exec := hopdb.NewGoExecutor(sentence, ectx)
	if err := exec.Run(r.Context()); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, exec.Response())
}

func buildSentence(req *queryRequest) (*hopdb.GoSentence, error) {
	sentence := &hopdb.GoSentence{
		Step: &hopdb.StepClause{Steps: req.Steps},
		From: &hopdb.FromClause{},
		Over: &hopdb.OverClause{All: req.OverAll, Reversely: req.Reversely},
	}
	if sentence.Step.Steps == 0 {
		sentence.Step.Steps = 1
	}
	for _, vid := range req.From {
		sentence.From.VIDs = append(sentence.From.VIDs, &hopdb.Expression{
			Kind: hopdb.ExprLiteral,
			Lit:  hopdb.IntValue(vid),
		})
	}
	for _, name := range req.Over {
		sentence.Over.Edges = append(sentence.Over.Edges, hopdb.OverEdge{Name: name})
	}
	if len(req.Yield) > 0 {
		sentence.Yield = &hopdb.YieldClause{Distinct: req.Distinct}
		for _, y := range req.Yield {
			expr, err := yieldExpr(&y)
			if err != nil {
				return nil, err
			}
			sentence.Yield.Columns = append(sentence.Yield.Columns,
				&hopdb.YieldColumn{Expr: expr, Alias: y.Alias})
		}
	}
	return sentence, nil
}

func yieldExpr(y *yieldSpec) (*hopdb.Expression, error) {
	switch y.Kind {
	case "edge_dst":
		return &hopdb.Expression{Kind: hopdb.ExprEdgeDstID, Ref: y.Edge}, nil
	case "edge_src":
		return &hopdb.Expression{Kind: hopdb.ExprEdgeSrcID, Ref: y.Edge}, nil
	case "edge_rank":
		return &hopdb.Expression{Kind: hopdb.ExprEdgeRank, Ref: y.Edge}, nil
	case "src_prop":
		return &hopdb.Expression{Kind: hopdb.ExprSourceProp, Ref: y.Tag, Prop: y.Prop}, nil
	case "dst_prop":
		return &hopdb.Expression{Kind: hopdb.ExprDestProp, Ref: y.Tag, Prop: y.Prop}, nil
	case "edge_prop":
		return &hopdb.Expression{Kind: hopdb.ExprAliasProp, Ref: y.Edge, Prop: y.Prop}, nil
	default:
		return nil, &hopdb.Error{Kind: hopdb.ErrSyntax, Msg: "unknown yield kind `" + y.Kind + "'"}
	}
}

func statusFor(err error) int {
	switch hopdb.KindOf(err) {
	case hopdb.ErrSyntax, hopdb.ErrSemantic:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// ---------------------------------------------------------------------------
// JSON helpers
// ---------------------------------------------------------------------------

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// ListenAndServe runs the admin API until the context is canceled.
func ListenAndServe(ctx context.Context, addr string, s *Server) error {
	srv := &http.Server{Addr: addr, Handler: s}
	go func() {
		<-ctx.Done()
		srv.Shutdown(context.Background())
	}()
	err := srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}
