package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/lekver/scribed/internal/jobs"
	"github.com/lekver/scribed/pkg/icron"
	"github.com/lekver/scribed/pkg/log"
)

var audioExts = map[string]bool{
	".mp3": true, ".wav": true, ".flac": true, ".m4a": true,
	".ogg": true, ".opus": true, ".wma": true, ".aac": true,
}

var videoExts = map[string]bool{
	".mp4": true, ".mkv": true, ".mov": true, ".avi": true,
	".webm": true, ".flv": true, ".wmv": true,
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required or exceeds the size limit")
		return
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	var mediaKind jobs.MediaKind
	switch {
	case audioExts[ext]:
		mediaKind = jobs.MediaAudio
	case videoExts[ext]:
		mediaKind = jobs.MediaVideo
	default:
		writeError(w, http.StatusBadRequest, "unsupported media format "+ext)
		return
	}

	method, err := s.parseMethod(r.FormValue("method"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	language := s.parseLanguage(r.FormValue("language"))
	timestamps := s.parseTimestamps(r.FormValue("timestamps"))

	stored := fmt.Sprintf("%d_%s", time.Now().Unix(), filepath.Base(header.Filename))
	size, err := s.saveUpload(file, stored)
	if err != nil {
		log.Error("Failed to store upload %s: %v", header.Filename, err)
		writeError(w, http.StatusInternalServerError, "cannot store upload")
		return
	}

	job := &jobs.Job{
		Title:  header.Filename,
		Status: jobs.StatusQueued,
		Source: jobs.Source{
			Kind:      jobs.SourceUpload,
			Filename:  stored,
			ByteSize:  size,
			MediaKind: mediaKind,
		},
		Method:       method,
		LanguageHint: language,
		Timestamps:   timestamps,
		QueuedAt:     jobs.NowMillis(),
	}
	if err := s.store.CreateJob(r.Context(), job); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.scheduler.AdmitNext()
	writeJSON(w, http.StatusCreated, job)
}

type remoteSubmission struct {
	URL        string `json:"url"`
	Method     string `json:"method"`
	Language   string `json:"language"`
	Timestamps *bool  `json:"timestamps"`
}

func (s *Server) handleRemote(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req remoteSubmission
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if !strings.HasPrefix(req.URL, "http://") && !strings.HasPrefix(req.URL, "https://") {
		writeError(w, http.StatusBadRequest, "url must be an http(s) address")
		return
	}

	method, err := s.parseMethod(req.Method)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	timestamps := s.defaults.Timestamps
	if req.Timestamps != nil {
		timestamps = *req.Timestamps
	}

	title := req.URL
	if len(title) > 80 {
		title = title[:80] + "..."
	}

	job := &jobs.Job{
		Title:  "Remote: " + title,
		Status: jobs.StatusQueued,
		Source: jobs.Source{
			Kind: jobs.SourceRemoteVideo,
			URL:  req.URL,
		},
		Method:       method,
		LanguageHint: s.parseLanguage(req.Language),
		Timestamps:   timestamps,
		QueuedAt:     jobs.NowMillis(),
	}
	if err := s.store.CreateJob(r.Context(), job); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.scheduler.AdmitNext()
	writeJSON(w, http.StatusCreated, job)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	status := jobs.Status(r.URL.Query().Get("status"))
	switch status {
	case "", jobs.StatusQueued, jobs.StatusProcessing, jobs.StatusReady, jobs.StatusFailed:
	default:
		writeError(w, http.StatusBadRequest, "unknown status filter")
		return
	}

	list, err := s.store.ListJobs(r.Context(), status)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleJobByID(w http.ResponseWriter, r *http.Request) {
	idText := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/transcriptions/"), "/")
	id, err := strconv.ParseInt(idText, 10, 64)
	if err != nil {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		job, err := s.store.GetJob(r.Context(), id)
		if errors.Is(err, jobs.ErrJobNotFound) {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, job)
	case http.MethodDelete:
		s.deleteJob(w, r, id)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// deleteJob removes the record together with its stored media and any
// leftover normalized audio artifact.
func (s *Server) deleteJob(w http.ResponseWriter, r *http.Request, id int64) {
	job, err := s.store.GetJob(r.Context(), id)
	if errors.Is(err, jobs.ErrJobNotFound) {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if job.Status == jobs.StatusProcessing {
		writeError(w, http.StatusConflict, "job is processing")
		return
	}

	if job.Source.Filename != "" {
		path := filepath.Join(s.uploadDir, filepath.Base(job.Source.Filename))
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.Warn("Failed to remove media %s of job %d: %v", path, id, err)
		}
	}
	if s.artifactPath != nil {
		if err := os.Remove(s.artifactPath(id)); err != nil && !os.IsNotExist(err) {
			log.Warn("Failed to remove audio artifact of job %d: %v", id, err)
		}
	}

	if err := s.store.DeleteJob(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": id})
}

func (s *Server) handleQueueStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	stats, err := s.scheduler.Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	payload := map[string]any{
		"queued":     stats.Queued,
		"processing": stats.Processing,
		"total":      stats.Total,
	}
	if s.sweepCron != "" {
		if info, err := icron.GetTriggerInfo(s.sweepCron, time.Now()); err == nil {
			payload["next_sweep"] = info.Next
		}
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handleCosts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.ledger == nil {
		writeError(w, http.StatusNotImplemented, "cost ledger is not configured")
		return
	}

	events, err := s.ledger.ListCosts(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	total, err := s.ledger.TotalCost(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"events": events,
		"total":  total,
	})
}

func (s *Server) saveUpload(src io.Reader, stored string) (int64, error) {
	if err := os.MkdirAll(s.uploadDir, 0o755); err != nil {
		return 0, err
	}
	dst, err := os.Create(filepath.Join(s.uploadDir, stored))
	if err != nil {
		return 0, err
	}
	defer dst.Close()
	return io.Copy(dst, src)
}

func (s *Server) parseMethod(raw string) (jobs.Method, error) {
	if raw == "" {
		return s.defaults.Method, nil
	}
	switch jobs.Method(raw) {
	case jobs.MethodLocal:
		return jobs.MethodLocal, nil
	case jobs.MethodRemote:
		return jobs.MethodRemote, nil
	default:
		return "", fmt.Errorf("method must be local or remote, got %q", raw)
	}
}

func (s *Server) parseLanguage(raw string) string {
	if raw == "" {
		return s.defaults.LanguageHint
	}
	return raw
}

func (s *Server) parseTimestamps(raw string) bool {
	if raw == "" {
		return s.defaults.Timestamps
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return s.defaults.Timestamps
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}
