package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/audiolibrelab/voicecapture/internal/audio"
	"github.com/audiolibrelab/voicecapture/internal/encode"
	"github.com/audiolibrelab/voicecapture/internal/options"
)

// Server exposes the recorder over HTTP and WebSocket so local UIs and
// scripts can drive it.
type Server struct {
	recorder   *audio.Recorder
	store      *options.Store
	port       string
	configPath string
	upgrader   websocket.Upgrader
}

// Config wires a Server instance.
type Config struct {
	Recorder *audio.Recorder
	Store    *options.Store
	Port     string

	// ConfigPath, when set, is where options changed through the API
	// are persisted.
	ConfigPath string
}

// StartRequest is the JSON body of POST /api/start.
type StartRequest struct {
	Auto    bool           `json:"auto"`
	Device  string         `json:"device,omitempty"`
	Options *options.Patch `json:"options,omitempty"`
}

// GainRequest is the JSON body of POST /api/gain.
type GainRequest struct {
	Gain float64 `json:"gain"`
}

// StatusResponse is the GET /status payload.
type StatusResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message,omitempty"`
	Gain    float64         `json:"gain"`
	Options options.Options `json:"options"`
}

// FileInfo describes one recording on disk.
type FileInfo struct {
	Name         string    `json:"name"`
	Path         string    `json:"path"`
	Size         int64     `json:"size"`
	SizeHuman    string    `json:"sizeHuman"`
	ModTime      time.Time `json:"modTime"`
	ModTimeHuman string    `json:"modTimeHuman"`
	Extension    string    `json:"extension"`
	StreamURL    string    `json:"streamUrl"`
	DownloadURL  string    `json:"downloadUrl"`
}

// RecordingsResponse is the GET /api/recordings payload.
type RecordingsResponse struct {
	Recordings          []FileInfo `json:"recordings"`
	TotalCount          int        `json:"totalCount"`
	OutputDirectory     string     `json:"outputDirectory"`
	SupportedExtensions []string   `json:"supportedExtensions"`
}

var supportedExtensions = []string{"wav", "mp3"}

// New creates a web server around an existing recorder.
func New(cfg Config) *Server {
	return &Server{
		recorder:   cfg.Recorder,
		store:      cfg.Store,
		port:       cfg.Port,
		configPath: cfg.ConfigPath,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The server fronts a local recorder for LAN UIs; any
			// origin may connect.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Handler returns the routing table. Separate from Start so tests can
// drive the server through httptest.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/api/start", s.handleStart)
	mux.HandleFunc("/api/stop", s.handleStop)
	mux.HandleFunc("/api/pause", s.handlePause)
	mux.HandleFunc("/api/resume", s.handleResume)
	mux.HandleFunc("/api/state", s.handleState)
	mux.HandleFunc("/api/gain", s.handleGain)
	mux.HandleFunc("/api/options", s.handleOptions)
	mux.HandleFunc("/api/options/reset", s.handleResetOptions)
	mux.HandleFunc("/api/capabilities", s.handleCapabilities)
	mux.HandleFunc("/api/permissions", s.handlePermissions)
	mux.HandleFunc("/api/permissions/request", s.handleRequestPermissions)
	mux.HandleFunc("/api/recordings", s.handleRecordings)
	mux.HandleFunc("/api/recordings/stream/", s.handleRecordingStream)
	mux.HandleFunc("/api/recordings/download/", s.handleRecordingDownload)
	mux.HandleFunc("/api/events", s.handleEvents)
	return mux
}

// Start runs the server until the listener fails.
func (s *Server) Start() error {
	localIP := getLocalIP()

	slog.Info("Starting VoiceCapture web server",
		"port", s.port,
		"local_url", fmt.Sprintf("http://%s:%s", localIP, s.port),
		"localhost_url", fmt.Sprintf("http://localhost:%s", s.port))

	return http.ListenAndServe(":"+s.port, s.Handler())
}

// requireMethod enforces the HTTP method for JSON endpoints.
func (s *Server) requireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusMethodNotAllowed)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"error":   "Method not allowed",
	})
	return false
}

// handleStart begins a recording session.
func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if !s.requireMethod(w, r, http.MethodPost) {
		return
	}

	var req StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.sendErrorResponse(w, http.StatusBadRequest,
			fmt.Sprintf("Invalid request body: %v", err), "operation", "start")
		return
	}

	var patch options.Patch
	if req.Options != nil {
		patch = *req.Options
	}

	// The session outlives the request, so it must not inherit the
	// request context.
	err := s.recorder.Start(context.Background(), audio.StartParams{
		Auto:      req.Auto,
		Device:    req.Device,
		Overrides: patch,
	})
	if err != nil {
		s.sendErrorResponse(w, statusForError(err),
			fmt.Sprintf("Failed to start recording: %v", err),
			"operation", "start", "auto", req.Auto, "device", req.Device)
		return
	}

	s.sendJSON(w, map[string]interface{}{
		"success": true,
		"state":   s.recorder.State(),
	})
}

// handleStop finalizes the current session and returns its result.
func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if !s.requireMethod(w, r, http.MethodPost) {
		return
	}

	result, err := s.recorder.Stop(context.Background())
	if err != nil {
		s.sendErrorResponse(w, statusForError(err),
			fmt.Sprintf("Failed to stop recording: %v", err), "operation", "stop")
		return
	}

	s.sendJSON(w, map[string]interface{}{
		"success": true,
		"state":   s.recorder.State(),
		"result":  result,
	})
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	if !s.requireMethod(w, r, http.MethodPost) {
		return
	}

	s.recorder.Pause()
	s.sendJSON(w, map[string]interface{}{
		"success": true,
		"state":   s.recorder.State(),
	})
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	if !s.requireMethod(w, r, http.MethodPost) {
		return
	}

	s.recorder.Resume()
	s.sendJSON(w, map[string]interface{}{
		"success": true,
		"state":   s.recorder.State(),
	})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if !s.requireMethod(w, r, http.MethodGet) {
		return
	}
	s.sendJSON(w, map[string]interface{}{"state": s.recorder.State()})
}

// handleGain reads (GET) or updates (POST) the live input gain.
func (s *Server) handleGain(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.sendJSON(w, map[string]interface{}{"gain": s.recorder.InputGain()})
	case http.MethodPost:
		var req GainRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.sendErrorResponse(w, http.StatusBadRequest,
				fmt.Sprintf("Invalid request body: %v", err), "operation", "set_gain")
			return
		}
		s.recorder.SetInputGain(req.Gain)
		s.persistOptions()
		s.sendJSON(w, map[string]interface{}{
			"success": true,
			"gain":    s.recorder.InputGain(),
		})
	default:
		s.requireMethod(w, r, http.MethodPost)
	}
}

// handleOptions reads (GET) or patches (POST) the persisted options.
func (s *Server) handleOptions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.sendJSON(w, map[string]interface{}{"options": s.recorder.Options()})
	case http.MethodPost:
		body, err := io.ReadAll(r.Body)
		if err != nil {
			s.sendErrorResponse(w, http.StatusBadRequest,
				fmt.Sprintf("Failed to read request body: %v", err), "operation", "set_options")
			return
		}
		// PatchFromJSON logs unknown keys instead of dropping them
		// silently, so client typos show up in the server log.
		patch, err := options.PatchFromJSON(body)
		if err != nil {
			s.sendErrorResponse(w, http.StatusBadRequest,
				fmt.Sprintf("Invalid options patch: %v", err), "operation", "set_options")
			return
		}
		merged := s.recorder.SetOptions(patch)
		s.persistOptions()
		s.sendJSON(w, map[string]interface{}{
			"success": true,
			"options": merged,
		})
	default:
		s.requireMethod(w, r, http.MethodPost)
	}
}

func (s *Server) handleResetOptions(w http.ResponseWriter, r *http.Request) {
	if !s.requireMethod(w, r, http.MethodPost) {
		return
	}

	reset := s.recorder.ResetOptions()
	s.persistOptions()
	s.sendJSON(w, map[string]interface{}{
		"success": true,
		"options": reset,
	})
}

func (s *Server) handleCapabilities(w http.ResponseWriter, r *http.Request) {
	if !s.requireMethod(w, r, http.MethodGet) {
		return
	}

	caps, err := s.recorder.Capabilities()
	if err != nil {
		s.sendErrorResponse(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to query capabilities: %v", err), "operation", "capabilities")
		return
	}
	s.sendJSON(w, caps)
}

func (s *Server) handlePermissions(w http.ResponseWriter, r *http.Request) {
	if !s.requireMethod(w, r, http.MethodGet) {
		return
	}

	state, err := s.recorder.CheckPermissions(r.Context())
	if err != nil {
		s.sendErrorResponse(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to check permissions: %v", err), "operation", "check_permissions")
		return
	}
	s.sendJSON(w, map[string]interface{}{"state": state})
}

func (s *Server) handleRequestPermissions(w http.ResponseWriter, r *http.Request) {
	if !s.requireMethod(w, r, http.MethodPost) {
		return
	}

	state, err := s.recorder.RequestPermissions(r.Context())
	if err != nil {
		s.sendErrorResponse(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to request permissions: %v", err), "operation", "request_permissions")
		return
	}
	s.sendJSON(w, map[string]interface{}{"state": state})
}

// handleStatus reports the overall recorder status for UIs.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !s.requireMethod(w, r, http.MethodGet) {
		return
	}

	state := s.recorder.State()
	s.sendJSON(w, StatusResponse{
		Status:  string(state),
		Message: statusMessage(state),
		Gain:    s.recorder.InputGain(),
		Options: s.recorder.Options(),
	})
}

// handleRecordings lists the recordings in the output directory.
func (s *Server) handleRecordings(w http.ResponseWriter, r *http.Request) {
	if !s.requireMethod(w, r, http.MethodGet) {
		return
	}

	dir := s.outputDirectory()
	if err := os.MkdirAll(dir, 0755); err != nil {
		s.sendErrorResponse(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to access recordings directory: %v", err), "dir", dir)
		return
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		s.sendErrorResponse(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to read recordings directory: %v", err), "dir", dir)
		return
	}

	var recordings []FileInfo
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(entry.Name())), ".")
		if !isSupportedExtension(ext) {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			slog.Warn("Failed to stat recording", "file", entry.Name(), "error", err)
			continue
		}

		recordings = append(recordings, FileInfo{
			Name:         entry.Name(),
			Path:         filepath.Join(dir, entry.Name()),
			Size:         info.Size(),
			SizeHuman:    formatBytes(info.Size()),
			ModTime:      info.ModTime(),
			ModTimeHuman: info.ModTime().Format("2006-01-02 15:04:05"),
			Extension:    ext,
			StreamURL:    fmt.Sprintf("/api/recordings/stream/%s", entry.Name()),
			DownloadURL:  fmt.Sprintf("/api/recordings/download/%s", entry.Name()),
		})
	}

	// Newest first.
	sort.Slice(recordings, func(i, j int) bool {
		return recordings[i].ModTime.After(recordings[j].ModTime)
	})

	s.sendJSON(w, RecordingsResponse{
		Recordings:          recordings,
		TotalCount:          len(recordings),
		OutputDirectory:     dir,
		SupportedExtensions: supportedExtensions,
	})
}

// handleRecordingStream serves a recording for in-browser playback with
// range support.
func (s *Server) handleRecordingStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	filename := r.URL.Path[len("/api/recordings/stream/"):]
	filePath, info, ok := s.resolveRecording(w, filename)
	if !ok {
		return
	}

	file, err := os.Open(filePath)
	if err != nil {
		http.Error(w, "Error opening file", http.StatusInternalServerError)
		return
	}
	defer file.Close()

	w.Header().Set("Content-Type", contentTypeFor(filename))
	w.Header().Set("Accept-Ranges", "bytes")
	http.ServeContent(w, r, filename, info.ModTime(), file)
}

// handleRecordingDownload serves a recording as an attachment.
func (s *Server) handleRecordingDownload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	filename := r.URL.Path[len("/api/recordings/download/"):]
	filePath, info, ok := s.resolveRecording(w, filename)
	if !ok {
		return
	}

	file, err := os.Open(filePath)
	if err != nil {
		http.Error(w, "Error opening file", http.StatusInternalServerError)
		return
	}
	defer file.Close()

	w.Header().Set("Content-Type", contentTypeFor(filename))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", fmt.Sprintf("%d", info.Size()))

	if _, err := io.Copy(w, file); err != nil {
		slog.Error("Error serving recording download", "file", filename, "error", err)
	}
}

// resolveRecording validates a recording filename and stats the file.
// On failure it writes the HTTP error itself and returns ok=false.
func (s *Server) resolveRecording(w http.ResponseWriter, filename string) (string, os.FileInfo, bool) {
	if filename == "" {
		http.Error(w, "Filename required", http.StatusBadRequest)
		return "", nil, false
	}
	// Reject anything that could escape the output directory.
	if strings.Contains(filename, "..") || strings.Contains(filename, "/") || strings.Contains(filename, "\\") {
		http.Error(w, "Invalid filename", http.StatusBadRequest)
		return "", nil, false
	}

	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
	if !isSupportedExtension(ext) {
		http.Error(w, "File type not supported", http.StatusForbidden)
		return "", nil, false
	}

	filePath := filepath.Join(s.outputDirectory(), filename)
	info, err := os.Stat(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			http.Error(w, "File not found", http.StatusNotFound)
		} else {
			http.Error(w, "Error accessing file", http.StatusInternalServerError)
		}
		return "", nil, false
	}

	return filePath, info, true
}

// handleEvents upgrades to WebSocket and forwards recorder events until
// the client goes away.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("WebSocket upgrade failed", "error", err, "remote", r.RemoteAddr)
		return
	}
	defer conn.Close()

	events, cancel := s.recorder.Subscribe()
	defer cancel()

	slog.Debug("Event subscriber connected", "remote", r.RemoteAddr)

	// The read loop only exists to notice the peer closing.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				slog.Debug("Event subscriber write failed", "error", err, "remote", r.RemoteAddr)
				return
			}
		case <-done:
			slog.Debug("Event subscriber disconnected", "remote", r.RemoteAddr)
			return
		}
	}
}

// persistOptions saves the current options when a config path is set.
func (s *Server) persistOptions() {
	if s.configPath == "" {
		return
	}
	if err := s.store.SaveFile(s.configPath); err != nil {
		slog.Warn("Failed to persist options", "path", s.configPath, "error", err)
	}
}

func (s *Server) outputDirectory() string {
	return options.ExpandPath(s.recorder.Options().Output.Directory)
}

func (s *Server) sendJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func (s *Server) sendErrorResponse(w http.ResponseWriter, statusCode int, errorMsg string, logContext ...interface{}) {
	logFields := []interface{}{"error_message", errorMsg, "status_code", statusCode}
	if len(logContext) > 0 {
		logFields = append(logFields, logContext...)
	}
	slog.Error("Sending error response to client", logFields...)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"error":   errorMsg,
	})
}

// statusForError maps recorder errors onto HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, audio.ErrAlreadyRecording), errors.Is(err, audio.ErrNotRecording):
		return http.StatusConflict
	case errors.Is(err, audio.ErrPermissionDenied):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func statusMessage(state audio.State) string {
	switch state {
	case audio.StateInactive:
		return "Idle"
	case audio.StateInitializing:
		return "Preparing capture device"
	case audio.StateRecording:
		return "Recording"
	case audio.StatePaused:
		return "Paused"
	case audio.StateStopping:
		return "Finalizing recording"
	case audio.StateError:
		return "Recovering from error"
	default:
		return string(state)
	}
}

func isSupportedExtension(ext string) bool {
	for _, supported := range supportedExtensions {
		if ext == supported {
			return true
		}
	}
	return false
}

// contentTypeFor maps the formats we produce directly; the system mime
// table is not guaranteed to know audio extensions.
func contentTypeFor(filename string) string {
	switch strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".") {
	case "wav":
		return encode.MIMEWAV
	case "mp3":
		return encode.MIMEMP3
	}
	if ct := mime.TypeByExtension(filepath.Ext(filename)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// formatBytes renders a byte count in human readable form.
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

func getLocalIP() string {
	// Dialing out is the portable way to learn the outbound interface.
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "localhost"
	}
	defer conn.Close()

	localAddr := conn.LocalAddr().(*net.UDPAddr)
	return localAddr.IP.String()
}
