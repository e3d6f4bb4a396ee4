package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	goahttp "goa.design/goa/v3/http"

	"repcount/internal/capture"
	"repcount/internal/config"
	"repcount/internal/exercise"
	"repcount/internal/pose"
	"repcount/internal/services"
	"repcount/internal/session"
	"repcount/internal/stream"
	"repcount/internal/ws"
)

// maxUploadSize bounds multipart video uploads.
const maxUploadSize = 512 << 20

type httpServices struct {
	session *services.SessionImplementation
	batch   *services.BatchImplementation
	health  *services.HealthImplementation
	hub     *ws.CountHub
	cfg     *config.Config
}

// handleHTTPServer configures and starts a HTTP server on addr. It shuts
// down the server when ctx is cancelled.
func handleHTTPServer(ctx context.Context, addr string, svc *httpServices, wg *sync.WaitGroup, errc chan error, logger *log.Logger, debug bool) {
	mux := newMux(svc, logger)

	var handler http.Handler = mux
	{
		handler = requestLog(logger, debug)(handler)
	}

	srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: time.Second * 60}

	(*wg).Add(1)
	go func() {
		defer (*wg).Done()

		go func() {
			logger.Printf("HTTP server listening on %q", addr)
			errc <- srv.ListenAndServe()
		}()

		<-ctx.Done()
		logger.Printf("shutting down HTTP server at %q", addr)

		// Shutdown gracefully with a 30s timeout.
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		err := srv.Shutdown(ctx)
		if err != nil {
			logger.Printf("failed to shutdown: %v", err)
		}
	}()
}

type route struct {
	method  string
	pattern string
	handler http.HandlerFunc
}

// newMux mounts every endpoint on a goa muxer.
func newMux(svc *httpServices, logger *log.Logger) goahttp.Muxer {
	mux := goahttp.NewMuxer()

	outputs := http.StripPrefix("/outputs/", http.FileServer(http.Dir(svc.cfg.OutputDir)))
	counts := ws.NewHandler(svc.hub, func() session.Status { return svc.session.Status(context.Background()) })

	routes := []route{
		{"GET", "/healthz", svc.healthz},
		{"GET", "/readyz", svc.readyz},
		{"GET", "/api/v1/exercises", svc.exercises},
		{"GET", "/api/v1/session", svc.status},
		{"POST", "/api/v1/session/start", svc.start},
		{"POST", "/api/v1/session/stop", svc.stop},
		{"GET", "/api/v1/session/count", svc.count},
		{"GET", "/video/live", svc.live},
		{"GET", "/ws/count", counts.ServeHTTP},
		{"POST", "/api/v1/videos", svc.upload},
		{"GET", "/outputs/{*path}", outputs.ServeHTTP},
	}
	for _, r := range routes {
		mux.Handle(r.method, r.pattern, r.handler)
		logger.Printf("HTTP mounted %s %s", r.method, r.pattern)
	}
	return mux
}

func (s *httpServices) healthz(w http.ResponseWriter, r *http.Request) {
	if err := s.health.Healthz(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *httpServices) readyz(w http.ResponseWriter, r *http.Request) {
	if err := s.health.Readyz(r.Context()); err != nil {
		writeJSON(w, r, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *httpServices) exercises(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, s.session.Exercises(r.Context()))
}

func (s *httpServices) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, s.session.Status(r.Context()))
}

type startBody struct {
	Exercise string `json:"exercise"`
}

// start accepts a JSON body or the "exercise" form field posted by an
// HTML form.
func (s *httpServices) start(w http.ResponseWriter, r *http.Request) {
	var body startBody
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := goahttp.RequestDecoder(r).Decode(&body); err != nil {
			writeJSON(w, r, http.StatusBadRequest, errorBody{Error: "invalid body: " + err.Error()})
			return
		}
	} else {
		body.Exercise = r.FormValue("exercise")
	}

	st, err := s.session.Start(r.Context(), body.Exercise)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, st)
}

func (s *httpServices) stop(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, s.session.Stop(r.Context()))
}

func (s *httpServices) count(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]int{"count": s.session.Count(r.Context())})
}

func (s *httpServices) live(w http.ResponseWriter, r *http.Request) {
	if !s.session.Status(r.Context()).Running {
		writeError(w, r, session.ErrSessionEnded)
		return
	}
	stream.Handler("live", s.session.Stream).ServeHTTP(w, r)
}

// upload stores a multipart video, processes it synchronously and returns
// the counted result with links to the generated files.
func (s *httpServices) upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, r, http.StatusBadRequest, errorBody{Error: "missing video file: " + err.Error()})
		return
	}
	defer file.Close()

	exerciseID := r.FormValue("exercise")
	if _, err := exercise.Resolve(exerciseID); err != nil {
		writeError(w, r, err)
		return
	}

	id := uuid.New().String()
	in := filepath.Join(s.cfg.UploadDir, id+filepath.Ext(header.Filename))
	out := filepath.Join(s.cfg.OutputDir, id+"_output.mp4")

	if err := saveUpload(file, in); err != nil {
		writeError(w, r, err)
		return
	}
	defer os.Remove(in)

	res, err := s.batch.ProcessFile(r.Context(), exerciseID, in, out)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, uploadResponse{
		BatchResult: res,
		VideoURL:    outputURL(s.cfg.OutputDir, res.Output),
		PlotURL:     outputURL(s.cfg.OutputDir, res.PlotPath),
		ReportURL:   outputURL(s.cfg.OutputDir, res.ReportPath),
	})
}

type uploadResponse struct {
	*services.BatchResult
	VideoURL  string `json:"video_url"`
	PlotURL   string `json:"plot_url,omitempty"`
	ReportURL string `json:"report_url,omitempty"`
}

func saveUpload(src io.Reader, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("store upload: %w", err)
	}
	if _, err := io.Copy(f, src); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("store upload: %w", err)
	}
	return f.Close()
}

func outputURL(dir, path string) string {
	if path == "" {
		return ""
	}
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return ""
	}
	return "/outputs/" + filepath.ToSlash(rel)
}

type errorBody struct {
	Error string `json:"error"`
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, exercise.ErrInvalidExercise):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrAlreadyRunning):
		return http.StatusConflict
	case errors.Is(err, session.ErrSessionEnded):
		return http.StatusConflict
	case errors.Is(err, capture.ErrSourceUnavailable), errors.Is(err, pose.ErrDetectionUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled):
		return 499
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		log.Printf("[HTTP] %s %s: %v", r.Method, r.URL.Path, err)
	}
	writeJSON(w, r, code, errorBody{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, r *http.Request, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := goahttp.ResponseEncoder(r.Context(), w).Encode(v); err != nil {
		log.Printf("[HTTP] encoding response: %v", err)
	}
}

// requestLog logs each request with a request ID. With debug unset only
// failed requests are logged.
func requestLog(logger *log.Logger, debug bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get("X-Request-Id")
			if id == "" {
				id = uuid.New().String()[:8]
			}
			w.Header().Set("X-Request-Id", id)

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			started := time.Now()
			next.ServeHTTP(rec, r)

			if debug || rec.status >= http.StatusBadRequest {
				logger.Printf("[%s] %s %s %d %s", id, r.Method, r.URL.Path, rec.status, time.Since(started).Round(time.Millisecond))
			}
		})
	}
}

// statusRecorder captures the response status and keeps the streaming and
// hijacking capabilities of the wrapped writer.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Flush() {
	if f, ok := s.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := s.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	return h.Hijack()
}

func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}
