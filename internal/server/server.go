// Package server exposes the conversion pipeline as a small HTTP API: a
// multipart upload endpoint, artifact downloads and a websocket progress
// stream. Presentation stays with the consumer; the server only serves
// data.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/philipparndt/gocad/internal/logging"
	"github.com/philipparndt/gocad/pkg/analysis"
	"github.com/philipparndt/gocad/pkg/convert"
	"github.com/philipparndt/gocad/pkg/gltf"
	"github.com/philipparndt/gocad/pkg/mesh"
	"github.com/philipparndt/gocad/pkg/obj"
	"github.com/philipparndt/gocad/pkg/stl"
)

// Config tunes the server. Zero values select the defaults.
type Config struct {
	// Addr is the listen address. Defaults to ":8080".
	Addr string

	// JobTTL is how long finished jobs and their artifacts stay available.
	// Defaults to 15 minutes.
	JobTTL time.Duration

	// MaxUploadBytes caps the multipart request size. Defaults to 256 MiB.
	MaxUploadBytes int64

	// Backends is the conversion chain. Nil selects the default chain with
	// the process-wide capability probe.
	Backends []convert.Backend

	// Options are passed through to every pipeline run.
	Options convert.Options
}

// Server holds the in-memory job store. Jobs share nothing but the
// read-only backend list, so concurrent uploads need no coordination
// beyond the store map itself.
type Server struct {
	cfg      Config
	log      *slog.Logger
	upgrader websocket.Upgrader

	mu   sync.RWMutex
	jobs map[string]*job
}

// New creates a server with the given configuration.
func New(cfg Config) *Server {
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.JobTTL <= 0 {
		cfg.JobTTL = 15 * time.Minute
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 256 << 20
	}
	if cfg.Backends == nil {
		cfg.Backends = convert.DefaultBackends(convert.Detect())
	}
	return &Server{
		cfg:  cfg,
		log:  logging.New("server"),
		jobs: make(map[string]*job),
	}
}

// Handler returns the API routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/models", s.handleUpload)
	mux.HandleFunc("GET /api/models/{id}", s.handleStatus)
	mux.HandleFunc("GET /api/models/{id}/events", s.handleEvents)
	mux.HandleFunc("GET /api/models/{id}/{artifact}", s.handleArtifact)
	return mux
}

// Run serves until the context is cancelled, then shuts down gracefully.
// A janitor goroutine expires jobs past their TTL.
func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{Addr: s.cfg.Addr, Handler: s.Handler()}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.log.Info("listening", "addr", s.cfg.Addr)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		ticker := time.NewTicker(s.cfg.JobTTL / 4)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				s.expire(time.Now())
			}
		}
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// expire removes jobs created before now minus the TTL.
func (s *Server) expire(now time.Time) {
	cutoff := now.Add(-s.cfg.JobTTL)
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, j := range s.jobs {
		if j.created.Before(cutoff) {
			delete(s.jobs, id)
			s.log.Debug("expired job", "id", id)
		}
	}
}

func (s *Server) lookup(id string) (*job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[id]
	return j, ok
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		httpError(w, http.StatusBadRequest, "multipart field \"file\" required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		httpError(w, http.StatusBadRequest, "failed to read upload")
		return
	}

	format := convert.FormatFromPath(header.Filename)
	if format == convert.FormatUnknown {
		httpError(w, http.StatusBadRequest, "unsupported file extension, expected .step, .stp or .stl")
		return
	}

	j := newJob()
	s.mu.Lock()
	s.jobs[j.id] = j
	s.mu.Unlock()

	// Pipelines are cheap; a per-request instance keeps the progress hook
	// scoped to this job.
	pipeline := convert.New(s.cfg.Backends, s.cfg.Options)
	pipeline.OnAttempt = func(a convert.Attempt) {
		attempt := a
		j.publish(event{Type: "attempt", Attempt: &attempt})
	}

	src := convert.Source{Name: header.Filename, Format: format, Data: data}
	m, attempts, err := pipeline.Convert(r.Context(), src)
	if err != nil {
		j.fail(attempts, err)
		s.log.Warn("conversion failed", "job", j.id, "file", header.Filename, "error", err)
		writeJSON(w, http.StatusUnprocessableEntity, j.snapshot())
		return
	}

	report, err := analysis.Analyze(m)
	if err != nil {
		j.fail(attempts, err)
		s.log.Error("analysis failed", "job", j.id, "error", err)
		writeJSON(w, http.StatusUnprocessableEntity, j.snapshot())
		return
	}

	artifacts, err := renderArtifacts(m, report, header.Filename)
	if err != nil {
		j.fail(attempts, err)
		s.log.Error("artifact rendering failed", "job", j.id, "error", err)
		writeJSON(w, http.StatusInternalServerError, j.snapshot())
		return
	}

	j.complete(report, attempts, artifacts)
	s.log.Info("model converted", "job", j.id, "file", header.Filename,
		"vertices", report.Vertices, "faces", report.Faces)
	writeJSON(w, http.StatusCreated, j.snapshot())
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	j, ok := s.lookup(r.PathValue("id"))
	if !ok {
		httpError(w, http.StatusNotFound, "unknown model id")
		return
	}
	writeJSON(w, http.StatusOK, j.snapshot())
}

var artifactContentTypes = map[string]string{
	"model.stl":   "model/stl",
	"model.obj":   "model/obj",
	"model.glb":   "model/gltf-binary",
	"report.json": "application/json",
}

func (s *Server) handleArtifact(w http.ResponseWriter, r *http.Request) {
	j, ok := s.lookup(r.PathValue("id"))
	if !ok {
		httpError(w, http.StatusNotFound, "unknown model id")
		return
	}

	name := r.PathValue("artifact")
	contentType, ok := artifactContentTypes[name]
	if !ok {
		httpError(w, http.StatusNotFound, "unknown artifact")
		return
	}
	data, ok := j.artifact(name)
	if !ok {
		httpError(w, http.StatusConflict, "artifact not available")
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Write(data)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	j, ok := s.lookup(r.PathValue("id"))
	if !ok {
		httpError(w, http.StatusNotFound, "unknown model id")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return // Upgrade already replied
	}
	defer conn.Close()

	replay, live := j.subscribe()
	if live != nil {
		defer j.unsubscribe(live)
	}

	for _, e := range replay {
		if err := conn.WriteJSON(e); err != nil {
			return
		}
	}
	if live != nil {
		for e := range live {
			if err := conn.WriteJSON(e); err != nil {
				return
			}
		}
	}

	deadline := time.Now().Add(time.Second)
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
}

// renderArtifacts produces every downloadable representation of the mesh.
func renderArtifacts(m *mesh.Mesh, report *analysis.Report, name string) (map[string][]byte, error) {
	artifacts := make(map[string][]byte, 4)

	var buf bytes.Buffer
	if err := stl.Write(&buf, m, name); err != nil {
		return nil, err
	}
	artifacts["model.stl"] = append([]byte(nil), buf.Bytes()...)

	buf.Reset()
	if err := obj.Write(&buf, m, obj.Options{Name: name}); err != nil {
		return nil, err
	}
	artifacts["model.obj"] = append([]byte(nil), buf.Bytes()...)

	buf.Reset()
	if err := gltf.WriteGLB(&buf, m, gltf.Options{Name: name}); err != nil {
		return nil, err
	}
	artifacts["model.glb"] = append([]byte(nil), buf.Bytes()...)

	reportJSON, err := json.Marshal(report)
	if err != nil {
		return nil, err
	}
	artifacts["report.json"] = reportJSON

	return artifacts, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
