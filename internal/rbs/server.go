package rbs

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/jeageon/RBS-cal/config"
)

//go:embed static/index.html
var indexPage []byte

// inputs above this many bytes switch /run to a background task when
// default-async handling is on
const asyncInputThreshold = 5000

// request bodies (file uploads included) are capped at 20 MB
const maxRequestBytes = 20 << 20

// Server is the HTTP front end over the estimate/design pipeline
type Server struct {
	conf  *config.Config
	pred  Predictor
	tasks *TaskRegistry
	log   zerolog.Logger
	cron  *cron.Cron
}

// NewServer wires the predictor and task registry into a server
func NewServer(conf *config.Config, pred Predictor, log zerolog.Logger) *Server {
	return &Server{
		conf:  conf,
		pred:  pred,
		tasks: NewTaskRegistry(time.Duration(conf.Server.TaskTTLSeconds) * time.Second),
		log:   log,
		cron:  cron.New(),
	}
}

// Router builds the chi route tree
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST"},
	}))
	r.Use(s.requestLogger)

	r.Get("/", s.handleIndex)
	r.Get("/health", s.handleHealth)
	r.Post("/run", s.handleRun)
	r.Post("/design", s.handleDesign)
	r.Get("/tasks/{taskID}", s.handleTask)

	return r
}

// Start schedules the task sweep and serves until the listener fails
func (s *Server) Start() error {
	if _, err := s.cron.AddFunc("@every 10m", s.tasks.Sweep); err != nil {
		return fmt.Errorf("failed to schedule task sweep: %w", err)
	}
	s.cron.Start()
	defer s.cron.Stop()

	addr := fmt.Sprintf("%s:%d", s.conf.Server.Host, s.conf.Server.Port)
	s.log.Info().Str("addr", addr).Msg("serving RBS calculator")

	server := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return server.ListenAndServe()
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(indexPage) // nolint:errcheck
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "status": "ready"})
}

// handleRun serves expression estimates, synchronously for small
// inputs and as a background task for large ones or on request
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)
	if err := r.ParseMultipartForm(maxRequestBytes); err != nil && err != http.ErrNotMultipart {
		s.writeError(w, http.StatusBadRequest, "Invalid form body", err.Error())
		return
	}

	req, tempPath, err := s.parseRunRequest(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error(), "")
		return
	}

	preferAsync := formBool(r.FormValue("async")) || formBool(r.FormValue("asyncMode"))
	if !preferAsync && s.conf.Server.DefaultAsync {
		preferAsync = s.runInputLength(req, tempPath) > asyncInputThreshold
	}

	if preferAsync {
		id := s.tasks.Create("run")
		go s.runEstimateTask(id, req, tempPath)
		s.writeJSON(w, http.StatusAccepted, map[string]interface{}{
			"ok": true, "task_id": id, "status": TaskQueued,
		})
		return
	}

	defer removeTemp(tempPath)
	result, err := Estimate(r.Context(), s.pred, req, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("OSTIR runtime error in /run")
		s.writeError(w, http.StatusInternalServerError, "OSTIR runtime error", err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

// parseRunRequest reads the /run form into an estimate request. File
// uploads land in a temp file the caller must clean up
func (s *Server) parseRunRequest(r *http.Request) (req EstimateRequest, tempPath string, err error) {
	inputMode := r.FormValue("inputMode")
	if inputMode == "" {
		inputMode = "sequence"
	}

	predict := PredictRequest{
		ASD:           strings.TrimSpace(r.FormValue("antiSd")),
		PrintSequence: r.FormValue("printSequence") != "",
		PrintASD:      r.FormValue("printASD") != "",
	}
	if predict.ASD == "" {
		predict.ASD = config.DefaultASD
	}

	switch inputMode {
	case "sequence":
		sequence := strings.TrimSpace(strings.ReplaceAll(r.FormValue("sequenceText"), "\r", ""))
		if sequence == "" {
			return req, "", fmt.Errorf("Sequence input is empty")
		}
		predict.Input = sequence
		predict.InputType = "string"
		req.SequenceForContext = Normalize(sequence)

	case "file":
		file, header, ferr := r.FormFile("sequenceFile")
		if ferr != nil || header.Filename == "" {
			return req, "", fmt.Errorf("No file uploaded")
		}
		defer file.Close()

		suffix := filepath.Ext(header.Filename)
		if suffix == "" {
			suffix = ".txt"
		}
		tmp, ferr := os.CreateTemp("", "rbs-upload-*"+suffix)
		if ferr != nil {
			return req, "", fmt.Errorf("failed to store uploaded file")
		}
		if _, ferr = tmp.ReadFrom(file); ferr != nil {
			tmp.Close()
			os.Remove(tmp.Name()) // nolint:errcheck
			return req, "", fmt.Errorf("failed to store uploaded file")
		}
		tmp.Close()
		tempPath = tmp.Name()

		predict.Input = tempPath
		predict.InputType = DetectInputType(tempPath)
		if predict.InputType == "fasta" {
			if seq, err := ExtractFirstFASTASequence(tempPath); err == nil {
				req.SequenceForContext = seq
			}
		}

	default:
		return req, "", fmt.Errorf("Invalid input mode")
	}

	for _, field := range []struct {
		name  string
		label string
		value *int
	}{
		{"start", "Start", &predict.Start},
		{"end", "End", &predict.End},
		{"threads", "Threads", &predict.Threads},
	} {
		raw := strings.TrimSpace(r.FormValue(field.name))
		if raw == "" {
			continue
		}
		parsed, perr := strconv.Atoi(raw)
		if perr != nil {
			removeTemp(tempPath)
			return req, "", fmt.Errorf("%s must be an integer", field.label)
		}
		*field.value = parsed
	}

	req.Predict = predict
	return req, tempPath, nil
}

// runInputLength estimates input size for the async switchover
func (s *Server) runInputLength(req EstimateRequest, tempPath string) int {
	if req.SequenceForContext != "" {
		return len(req.SequenceForContext)
	}
	if tempPath != "" {
		if info, err := os.Stat(tempPath); err == nil {
			return int(info.Size())
		}
	}
	return len(req.Predict.Input)
}

// runEstimateTask is the background body of an async /run
func (s *Server) runEstimateTask(id string, req EstimateRequest, tempPath string) {
	defer removeTemp(tempPath)
	s.tasks.SetRunning(id)

	progress := func(p Progress) {
		s.tasks.SetProgress(id, p.Progress, fmt.Sprintf("Running OSTIR (%s)", p.Phase))
	}

	result, err := Estimate(context.Background(), s.pred, req, progress)
	if err != nil {
		s.log.Error().Err(err).Str("task", id).Msg("background estimate failed")
		s.tasks.Fail(id, s.publicError(err, "Background task failed."), truncateDetail(err.Error()))
		return
	}
	s.tasks.Finish(id, result)
}

// handleDesign serves RBS design requests through the two-phase
// screen/refine pipeline
func (s *Server) handleDesign(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)
	if err := r.ParseForm(); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid form body", err.Error())
		return
	}

	req, err := ParseDesignRequest(r.PostForm, s.conf)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error(), "")
		return
	}

	if formBool(r.FormValue("async")) || formBool(r.FormValue("asyncMode")) {
		id := s.tasks.Create("design")
		go s.runDesignTask(id, req)
		s.writeJSON(w, http.StatusAccepted, map[string]interface{}{
			"ok": true, "task_id": id, "status": TaskQueued,
		})
		return
	}

	result, err := Design(r.Context(), s.conf, s.pred, req, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("runtime error in /design")
		s.writeError(w, http.StatusInternalServerError, "Design runtime error", err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

// runDesignTask is the background body of an async /design
func (s *Server) runDesignTask(id string, req *DesignRequest) {
	s.tasks.SetRunning(id)

	progress := func(p Progress) {
		var message string
		switch p.Phase {
		case "refine":
			message = fmt.Sprintf("Full-length reevaluation %d/%d", p.Iteration, p.MaxIteration)
		default:
			message = fmt.Sprintf("Running (phase=%s, iter=%d/%d)", p.Phase, p.Iteration, p.MaxIteration)
		}
		s.tasks.SetProgress(id, p.Progress, message)
	}

	result, err := Design(context.Background(), s.conf, s.pred, req, progress)
	if err != nil {
		s.log.Error().Err(err).Str("task", id).Msg("background design failed")
		s.tasks.Fail(id, s.publicError(err, "Background task failed."), truncateDetail(err.Error()))
		return
	}
	s.tasks.Finish(id, result)
}

func (s *Server) handleTask(w http.ResponseWriter, r *http.Request) {
	s.tasks.Sweep()

	task, ok := s.tasks.Get(chi.URLParam(r, "taskID"))
	if !ok {
		s.writeError(w, http.StatusNotFound, "Task not found", "")
		return
	}
	s.writeJSON(w, http.StatusOK, task.View(s.conf.Server.DebugError))
}

// publicError is the caller-safe form of an internal error
func (s *Server) publicError(err error, fallback string) string {
	if s.conf.Server.DebugError {
		return err.Error()
	}
	return fallback
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Error().Err(err).Msg("failed to encode response")
	}
}

// writeError keeps API responses production-safe: internal detail is
// included only in debug mode
func (s *Server) writeError(w http.ResponseWriter, status int, message, detail string) {
	payload := map[string]interface{}{"ok": false, "error": message}
	if s.conf.Server.DebugError && detail != "" {
		payload["detail"] = detail
	}
	s.writeJSON(w, status, payload)
}

func formBool(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "y", "on":
		return true
	}
	return false
}

func removeTemp(path string) {
	if path != "" {
		os.Remove(path) // nolint:errcheck
	}
}

// truncateDetail bounds stored error detail the way the poll endpoint
// expects to return it
func truncateDetail(detail string) string {
	if len(detail) > 1000 {
		return detail[:1000]
	}
	return detail
}
