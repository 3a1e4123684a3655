// Package api exposes the HTTP surface: uploads, track browsing and the
// synchronous promotion actions.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/voislab/soundflow/internal/blobstore"
	"github.com/voislab/soundflow/internal/config"
	"github.com/voislab/soundflow/internal/model"
	"github.com/voislab/soundflow/internal/orchestrator"
	"github.com/voislab/soundflow/internal/queue"
	"github.com/voislab/soundflow/internal/repository"
	"github.com/voislab/soundflow/internal/signing"
	"github.com/voislab/soundflow/internal/validator"
)

// Server exposes HTTP endpoints for uploads, browsing and manual promotion.
// The orchestrator is nil on deployments without the promotion capability.
type Server struct {
	cfg     *config.Config
	repo    *repository.TrackRepository
	uploads *blobstore.Store
	media   *blobstore.Store
	queue   *queue.Client
	orch    *orchestrator.Orchestrator
	signer  *signing.Signer
	log     *zap.Logger
	server  *http.Server
	once    sync.Once
}

// New constructs a Server.
func New(cfg *config.Config, repo *repository.TrackRepository, uploads, media *blobstore.Store, queueClient *queue.Client, orch *orchestrator.Orchestrator, log *zap.Logger) *Server {
	return &Server{
		cfg:     cfg,
		repo:    repo,
		uploads: uploads,
		media:   media,
		queue:   queueClient,
		orch:    orch,
		signer:  signing.NewSigner([]byte(cfg.SigningSecret)),
		log:     log,
	}
}

// Run starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.once.Do(func() {
		mux := http.NewServeMux()
		mux.HandleFunc("/healthz", s.handleHealth)
		mux.HandleFunc("/uploads", s.handleUpload)
		mux.HandleFunc("/tracks", s.handleTracks)
		mux.HandleFunc("/tracks/", s.handleTrack)
		mux.HandleFunc("/promotions", s.handlePromotions)
		mux.HandleFunc("/download", s.handleDownload)
		s.server = &http.Server{
			Addr:    s.cfg.Address,
			Handler: s.loggingMiddleware(mux),
		}
	})
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()
	s.log.Info("api listening", zap.String("address", s.cfg.Address))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleUpload streams a multipart file into the upload area and queues
// ingestion, mirroring the object-created trigger for clients that go
// through the API instead of writing to the bucket.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.OperationTimeout)
	defer cancel()
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxFileBytes+1024)
	mr, err := r.MultipartReader()
	if err != nil {
		http.Error(w, "expecting multipart form", http.StatusBadRequest)
		return
	}
	part, err := nextFilePart(mr)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	defer part.Close()

	filename := filepath.Base(part.FileName())
	if filename == "" || filename == "." {
		http.Error(w, "missing filename", http.StatusBadRequest)
		return
	}
	tmp, size, err := s.persistTemp(part)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	key := "audio/" + filename
	if err := s.uploads.Put(ctx, key, tmp, size, "application/octet-stream"); err != nil {
		s.log.Error("store upload", zap.String("key", key), zap.Error(err))
		http.Error(w, "failed to store file", http.StatusInternalServerError)
		return
	}
	if err := s.queue.EnqueueIngest(ctx, s.uploads.Bucket(), key); err != nil {
		http.Error(w, "failed to queue ingestion", http.StatusInternalServerError)
		return
	}
	s.respondJSON(w, http.StatusAccepted, map[string]string{
		"objectKey": key,
		"status":    "queued",
	})
}

func (s *Server) handleTracks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 && parsed <= 500 {
			limit = parsed
		}
	}
	var (
		tracks []*model.Track
		err    error
	)
	switch {
	case r.URL.Query().Get("genre") != "":
		tracks, err = s.repo.ListByGenre(r.Context(), r.URL.Query().Get("genre"), limit)
	case r.URL.Query().Get("status") != "":
		tracks, err = s.repo.ListByStatuses(r.Context(),
			[]model.Status{model.Status(r.URL.Query().Get("status"))}, limit)
	default:
		tracks, err = s.repo.ListByStatuses(r.Context(),
			[]model.Status{model.StatusProcessed, model.StatusEnhanced, model.StatusPromoted}, limit)
	}
	if err != nil {
		s.log.Error("list tracks", zap.Error(err))
		http.Error(w, "failed to list tracks", http.StatusInternalServerError)
		return
	}
	if tracks == nil {
		tracks = []*model.Track{}
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"tracks": tracks, "count": len(tracks)})
}

func (s *Server) handleTrack(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/tracks/")
	id, sub, _ := strings.Cut(rest, "/")
	if id == "" || (sub != "" && sub != "link") {
		http.NotFound(w, r)
		return
	}
	track, err := s.repo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			http.Error(w, "track not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to load track", http.StatusInternalServerError)
		return
	}
	if sub == "link" {
		s.issueLink(w, track.ID, track.Filename)
		return
	}
	s.respondJSON(w, http.StatusOK, track)
}

// issueLink returns a time-limited signed download URL for the track's audio.
func (s *Server) issueLink(w http.ResponseWriter, trackID, filename string) {
	mediaKey := validator.TrackPrefix(trackID) + filename
	token, expires := s.signer.Issue(mediaKey, s.cfg.LinkTTL)
	link := fmt.Sprintf("/download?key=%s&expires=%d&token=%s",
		url.QueryEscape(mediaKey), expires, token)
	s.respondJSON(w, http.StatusOK, map[string]any{
		"downloadUrl": link,
		"expires":     expires,
	})
}

// handleDownload validates a signed link and streams the audio from the
// media area.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	key, expires, token := q.Get("key"), q.Get("expires"), q.Get("token")
	if key == "" || expires == "" || token == "" {
		http.Error(w, "missing link parameters", http.StatusBadRequest)
		return
	}
	if !s.signer.Validate(key, expires, token) {
		http.Error(w, "invalid or expired link", http.StatusForbidden)
		return
	}
	obj, err := s.media.Open(r.Context(), key)
	if err != nil {
		s.log.Error("open media object", zap.String("key", key), zap.Error(err))
		http.Error(w, "failed to open media", http.StatusInternalServerError)
		return
	}
	defer obj.Close()
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", "attachment; filename=\""+path.Base(key)+"\"")
	if _, err := io.Copy(w, obj); err != nil {
		s.log.Warn("stream media object", zap.String("key", key), zap.Error(err))
	}
}

// handlePromotions accepts the manual trigger payloads and runs them
// synchronously, returning the structured outcome including the verdict so
// an operator can see exactly which check failed.
func (s *Server) handlePromotions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.orch == nil {
		http.Error(w, "promotion is not enabled in this environment", http.StatusServiceUnavailable)
		return
	}
	var req orchestrator.ActionRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		http.Error(w, "malformed payload", http.StatusBadRequest)
		return
	}
	resp, err := s.orch.HandleAction(r.Context(), req)
	if err != nil {
		s.log.Error("handle promotion action", zap.String("action", req.Action), zap.Error(err))
		http.Error(w, "promotion action failed", http.StatusInternalServerError)
		return
	}
	s.respondJSON(w, resp.StatusCode, resp)
}

func (s *Server) persistTemp(part *multipart.Part) (*os.File, int64, error) {
	tmp, err := os.CreateTemp("", "soundflow-upload-*")
	if err != nil {
		return nil, 0, fmt.Errorf("create temp file: %w", err)
	}
	size, err := io.Copy(tmp, part)
	if err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return nil, 0, fmt.Errorf("read upload: %w", err)
	}
	if size == 0 {
		tmp.Close()
		os.Remove(tmp.Name())
		return nil, 0, errors.New("empty file")
	}
	if _, err := tmp.Seek(0, 0); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return nil, 0, fmt.Errorf("rewind temp file: %w", err)
	}
	return tmp, size, nil
}

func nextFilePart(mr *multipart.Reader) (*multipart.Part, error) {
	for {
		part, err := mr.NextPart()
		if err != nil {
			return nil, err
		}
		if part.FormName() == "file" {
			return part, nil
		}
		part.Close()
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Error("encode response", zap.Error(err))
	}
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("elapsed", time.Since(start)))
	})
}
