// Package web exposes the search pipeline as a JSON API. Every
// endpoint mirrors a CLI command and echoes the equivalent invocation
// in its cli_command field.
package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wlame/rx/internal/app"
	"github.com/wlame/rx/internal/domain/complexity"
)

// Server serves the JSON API over HTTP.
type Server struct {
	app      *app.App
	listener net.Listener
	httpSrv  *http.Server
	port     int
	started  time.Time
	stopOnce sync.Once
}

// NewServer creates an HTTP server wrapping the assembled application.
func NewServer(a *app.App) *Server {
	return &Server{app: a}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /v1/trace", s.handleTrace)
	mux.HandleFunc("GET /v1/samples", s.handleSamples)
	mux.HandleFunc("GET /v1/complexity", s.handleComplexity)
	mux.HandleFunc("GET /v1/analyse", s.handleAnalyse)

	mux.HandleFunc("GET /v1/index", s.handleIndexGet)
	mux.HandleFunc("POST /v1/index", s.handleIndexPost)
	mux.HandleFunc("DELETE /v1/index", s.handleIndexDelete)

	mux.HandleFunc("POST /v1/compress", s.handleCompress)
	mux.HandleFunc("GET /v1/tasks", s.handleTasks)
	mux.HandleFunc("GET /v1/tasks/{id}", s.handleTask)

	mux.HandleFunc("GET /v1/requests", s.handleRequests)
	mux.HandleFunc("GET /v1/requests/{id}", s.handleRequest)

	mux.HandleFunc("DELETE /v1/cache", s.handleCacheWipe)
	return mux
}

// Start begins listening on addr.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	s.listener = ln
	s.port = ln.Addr().(*net.TCPAddr).Port
	s.started = time.Now()
	s.httpSrv = &http.Server{Handler: s.Handler()}

	go s.httpSrv.Serve(ln)
	return nil
}

// Stop gracefully shuts down the HTTP server. Idempotent.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		if s.httpSrv != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			s.httpSrv.Shutdown(ctx)
		}
	})
}

// Port returns the bound port number.
func (s *Server) Port() int {
	return s.port
}

// URL returns the server base URL.
func (s *Server) URL() string {
	return fmt.Sprintf("http://localhost:%d", s.port)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, format string, args ...any) {
	writeJSON(w, status, map[string]string{"error": fmt.Sprintf(format, args...)})
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func queryBool(r *http.Request, key string) bool {
	switch strings.ToLower(r.URL.Query().Get(key)) {
	case "true", "1", "yes":
		return true
	}
	return false
}

// queryInts parses a repeatable parameter that also accepts
// comma-separated values.
func queryInts(r *http.Request, key string) ([]int64, error) {
	var out []int64
	for _, raw := range r.URL.Query()[key] {
		for _, part := range strings.Split(raw, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			v, err := strconv.ParseInt(part, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid %s value %q", key, part)
			}
			out = append(out, v)
		}
	}
	return out, nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"search_root": s.app.Sandbox.Root(),
		"uptime":      time.Since(s.started).Round(time.Second).String(),
	})
}

func (s *Server) handleTrace(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	req := app.TraceRequest{
		Paths:          q["path"],
		Patterns:       q["regexp"],
		Passthrough:    q["flag"],
		Include:        q["include"],
		Exclude:        q["exclude"],
		MaxResults:     queryInt(r, "max_results", 0),
		NoCache:        queryBool(r, "no_cache"),
		OnFileHook:     q.Get("on_file"),
		OnMatchHook:    q.Get("on_match"),
		OnCompleteHook: q.Get("on_complete"),
	}
	if ctxLines := queryInt(r, "context", 0); ctxLines > 0 {
		req.BeforeContext = ctxLines
		req.AfterContext = ctxLines
	}
	req.BeforeContext = queryInt(r, "before_context", req.BeforeContext)
	req.AfterContext = queryInt(r, "after_context", req.AfterContext)

	if len(req.Patterns) == 0 {
		writeError(w, http.StatusBadRequest, "regexp parameter is required")
		return
	}
	if len(req.Paths) == 0 {
		writeError(w, http.StatusBadRequest, "path parameter is required")
		return
	}

	resp, err := s.app.Trace(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSamples(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	offsets, err := queryInts(r, "offsets")
	if err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}
	lines, err := queryInts(r, "lines")
	if err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}

	before, after := 3, 3
	if ctxLines := queryInt(r, "context", -1); ctxLines >= 0 {
		before, after = ctxLines, ctxLines
	}
	before = queryInt(r, "before_context", before)
	after = queryInt(r, "after_context", after)

	req := app.SamplesRequest{
		Path:        q.Get("path"),
		ByteOffsets: offsets,
		LineNumbers: lines,
		Before:      before,
		After:       after,
	}
	if req.Path == "" {
		writeError(w, http.StatusBadRequest, "path parameter is required")
		return
	}

	resp, err := s.app.Samples(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleComplexity(w http.ResponseWriter, r *http.Request) {
	pattern := r.URL.Query().Get("regex")
	if pattern == "" {
		writeError(w, http.StatusBadRequest, "regex parameter is required")
		return
	}

	report := complexity.Score(pattern)
	writeJSON(w, http.StatusOK, map[string]any{
		"regex":       pattern,
		"report":      report,
		"cli_command": app.ComplexityCLICommand(pattern),
	})
}

func (s *Server) handleAnalyse(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if len(q["path"]) == 0 {
		writeError(w, http.StatusBadRequest, "path parameter is required")
		return
	}

	resp, err := s.app.Analyse(r.Context(), app.AnalyseRequest{
		Paths:      q["path"],
		Include:    q["include"],
		Exclude:    q["exclude"],
		MaxWorkers: queryInt(r, "max_workers", 0),
		NoCache:    queryBool(r, "no_cache"),
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleIndexGet(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		writeError(w, http.StatusBadRequest, "path parameter is required")
		return
	}

	info, err := s.app.Info(path)
	if err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"info":        info,
		"cli_command": app.IndexCLICommand(path, true, false),
	})
}

func (s *Server) handleIndexPost(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		writeError(w, http.StatusBadRequest, "path parameter is required")
		return
	}
	force := queryBool(r, "force")

	idx, built, err := s.app.BuildIndex(path, force)
	if err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"path":        idx.Path,
		"built":       built,
		"checkpoints": len(idx.Checkpoints),
		"lines":       idx.Stats.LineCount,
		"cli_command": app.IndexCLICommand(path, false, force),
	})
}

func (s *Server) handleIndexDelete(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		writeError(w, http.StatusBadRequest, "path parameter is required")
		return
	}

	existed, err := s.app.DeleteIndex(path)
	if err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": existed})
}

// handleCompress starts an asynchronous compression task. A second
// request for the same path while one is in flight returns the existing
// task instead of starting another.
func (s *Server) handleCompress(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	input := q.Get("input_path")
	if input == "" {
		writeError(w, http.StatusBadRequest, "input_path parameter is required")
		return
	}
	req := app.CompressRequest{
		InputPath:  input,
		OutputPath: q.Get("output_path"),
		FrameSize:  queryInt(r, "frame_size", 0),
		Level:      queryInt(r, "compression_level", 0),
	}

	task, isNew := s.app.Tasks.Create(input, "compress")
	if !isNew {
		writeJSON(w, http.StatusConflict, task)
		return
	}

	go func() {
		s.app.Tasks.SetRunning(task.TaskID)
		info, err := s.app.Compress(req)
		if err != nil {
			s.app.Tasks.Finish(task.TaskID, nil, err)
			return
		}
		s.app.Tasks.Finish(task.TaskID, map[string]any{
			"output_path":       info.Path,
			"frame_count":       info.FrameCount,
			"compressed_size":   info.CompressedSize,
			"decompressed_size": info.DecompressedSize,
		}, nil)
	}()

	w.Header().Set("Location", "/v1/tasks/"+task.TaskID)
	writeJSON(w, http.StatusAccepted, map[string]any{
		"task_id":     task.TaskID,
		"status":      task.Status,
		"cli_command": app.CompressCLICommand(input, req.OutputPath, req.FrameSize, req.Level),
	})
}

func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"tasks": s.app.Tasks.All()})
}

func (s *Server) handleTask(w http.ResponseWriter, r *http.Request) {
	task := s.app.Tasks.Get(r.PathValue("id"))
	if task == nil {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleRequests(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	includeCompleted := true
	if r.URL.Query().Has("include_completed") {
		includeCompleted = queryBool(r, "include_completed")
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"requests": s.app.Requests.List(limit, includeCompleted),
	})
}

func (s *Server) handleRequest(w http.ResponseWriter, r *http.Request) {
	info := s.app.Requests.Get(r.PathValue("id"))
	if info == nil {
		writeError(w, http.StatusNotFound, "request not found")
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleCacheWipe(w http.ResponseWriter, r *http.Request) {
	if err := s.app.Cache.Wipe(); err != nil {
		writeError(w, http.StatusInternalServerError, "%v", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "wiped"})
}
