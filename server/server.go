package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/wippyai/hotswap/errors"
	"github.com/wippyai/hotswap/loader"
	"github.com/wippyai/hotswap/swap"
)

// maxUpload caps bundle upload size at 128 MiB.
const maxUpload = 128 << 20

// Server adapts the swap store and executor to an HTTP management API.
type Server struct {
	store *swap.Store
	exec  *swap.Executor
	log   *zap.Logger
}

// New creates a server over store and exec. A nil logger disables
// logging.
func New(store *swap.Store, exec *swap.Executor, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{store: store, exec: exec, log: log}
}

// Handler returns the route table:
//
//	POST /v1/library           upload and activate a bundle
//	PUT  /v1/library/location  activate an existing bundle path
//	GET  /v1/library/version   active bundle version
//	POST /v1/run               invoke an export, optionally under an override
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/library", s.handleUpload)
	mux.HandleFunc("PUT /v1/library/location", s.handleSetLocation)
	mux.HandleFunc("GET /v1/library/version", s.handleVersion)
	mux.HandleFunc("POST /v1/run", s.handleRun)
	return mux
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	data, err := readBundle(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := s.store.Replace(data); err != nil {
		s.log.Error("bundle upload failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}

	location, version := s.store.Info()
	s.log.Info("bundle uploaded",
		zap.String("location", location),
		zap.String("version", version))
	s.writeJSON(w, http.StatusCreated, versionResponse{Version: optional(version)})
}

// readBundle accepts either a multipart form with a "bundle" file field
// or the bundle archive as the raw request body.
func readBundle(r *http.Request) ([]byte, error) {
	r.Body = http.MaxBytesReader(nil, r.Body, maxUpload)

	ct := r.Header.Get("Content-Type")
	if strings.HasPrefix(ct, "multipart/form-data") {
		file, _, err := r.FormFile("bundle")
		if err != nil {
			return nil, errors.InvalidInput(errors.PhaseStore, "missing multipart field \"bundle\"")
		}
		defer file.Close()
		return io.ReadAll(file)
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, errors.InvalidInput(errors.PhaseStore, "unreadable request body")
	}
	if len(data) == 0 {
		return nil, errors.InvalidInput(errors.PhaseStore, "empty bundle upload")
	}
	return data, nil
}

type setLocationRequest struct {
	Path string `json:"path"`
}

func (s *Server) handleSetLocation(w http.ResponseWriter, r *http.Request) {
	var req setLocationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Path == "" {
		s.writeError(w, http.StatusBadRequest, errors.InvalidInput(errors.PhaseStore, "body must be {\"path\": ...}"))
		return
	}

	s.store.SetLocation(req.Path)
	_, version := s.store.Info()
	s.writeJSON(w, http.StatusOK, versionResponse{Version: optional(version)})
}

type versionResponse struct {
	Version *string `json:"version"`
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, versionResponse{Version: optional(s.store.Version())})
}

type runRequest struct {
	Function string   `json:"function"`
	Params   []uint64 `json:"params"`
	Bundle   string   `json:"bundle,omitempty"` // override location
}

type runResponse struct {
	Results []uint64 `json:"results"`
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, errors.InvalidInput(errors.PhaseExecute, "malformed run request"))
		return
	}
	if req.Function == "" {
		s.writeError(w, http.StatusBadRequest, errors.InvalidInput(errors.PhaseExecute, "function is required"))
		return
	}

	out, err := s.exec.Run(r.Context(), req.Bundle, func(ctx context.Context) (any, error) {
		return loader.FromContext(ctx).Invoke(ctx, req.Function, req.Params...)
	})
	if err != nil {
		status := http.StatusInternalServerError
		if errors.IsResolution(err) {
			status = http.StatusUnprocessableEntity
		}
		s.writeError(w, status, err)
		return
	}

	s.writeJSON(w, http.StatusOK, runResponse{Results: out.([]uint64)})
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn("write response", zap.Error(err))
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
