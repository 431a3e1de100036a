package main

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/himanishpuri/KaraokeCore/internal/library"
	"github.com/himanishpuri/KaraokeCore/internal/session"
	"github.com/himanishpuri/KaraokeCore/pkg/logger"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// Remote is the part of the session controller the API drives.
type Remote interface {
	EnqueueNumber(number string) error
	SkipToNext()
	Pause() error
	Resume() error
	ToggleSpeed() bool
	Cleanup()
	HandleKey(k session.Key) bool
	Queue() []string
	Render() session.RenderState
}

// Server encapsulates the HTTP server and its dependencies
type Server struct {
	lib      library.Library
	session  Remote
	config   *ServerConfig
	log      session.Logger
	upgrader websocket.Upgrader
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port           int
	DBPath         string
	SampleRate     int
	AllowedOrigins []string
}

// NewServer creates a new server instance
func NewServer(lib library.Library, remote Remote, config *ServerConfig) *Server {
	s := &Server{
		lib:     lib,
		session: remote,
		config:  config,
		log:     logger.GetLogger().With("http"),
	}
	s.upgrader = websocket.Upgrader{CheckOrigin: s.originAllowed}
	return s
}

// originAllowed applies the CORS origin list to websocket handshakes.
func (s *Server) originAllowed(r *http.Request) bool {
	origins := s.config.AllowedOrigins
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, o := range origins {
		if o == origin {
			return true
		}
	}
	return false
}

// respondJSON writes a JSON response
func (s *Server) respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Errorf("Failed to encode JSON response: %v", err)
	}
}

// respondError writes an error response
func (s *Server) respondError(w http.ResponseWriter, statusCode int, message string) {
	s.respondJSON(w, statusCode, ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
	})
}

func decodeJSON(r *http.Request, v any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return err
	}
	return json.Unmarshal(body, v)
}

// handleRoot handles GET /
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]any{
		"service": "KaraokeCore API",
		"version": "1.0.0",
		"endpoints": map[string]string{
			"health":  "GET /health",
			"metrics": "GET /api/health/metrics",
			"songs":   "GET /api/songs",
			"getSong": "GET /api/songs/{number}",
			"session": "GET /api/session",
			"stream":  "GET /api/session/ws",
			"queue":   "GET|POST /api/queue",
			"keys":    "POST /api/keys",
			"next":    "POST /api/session/next",
			"pause":   "POST /api/session/pause",
			"resume":  "POST /api/session/resume",
			"speed":   "POST /api/session/speed",
			"stop":    "POST /api/session/stop",
		},
	})
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// handleMetrics handles GET /api/health/metrics
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	songs, err := s.lib.List()
	if err != nil {
		s.log.Errorf("Failed to get song count: %v", err)
		s.respondError(w, http.StatusInternalServerError, "Failed to retrieve metrics")
		return
	}

	s.respondJSON(w, http.StatusOK, MetricsResponse{
		Status:       "healthy",
		DatabasePath: s.config.DBPath,
		SongCount:    len(songs),
		SampleRate:   s.config.SampleRate,
		SessionState: s.session.Render().State.String(),
	})
}

// handleListSongs handles GET /api/songs, filtered by the optional q parameter
func (s *Server) handleListSongs(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	songs, err := s.lib.Search(query)
	if err != nil {
		s.log.Errorf("Failed to list songs: %v", err)
		s.respondError(w, http.StatusInternalServerError, "Failed to retrieve songs")
		return
	}

	dtos := make([]SongDTO, len(songs))
	for i, song := range songs {
		dtos[i] = *newSongDTO(song)
	}

	s.respondJSON(w, http.StatusOK, ListSongsResponse{
		Songs: dtos,
		Count: len(dtos),
		Query: query,
	})
}

// handleGetSong handles GET /api/songs/{number}
func (s *Server) handleGetSong(w http.ResponseWriter, r *http.Request) {
	number := r.PathValue("number")
	song, err := s.lib.FindByNumber(number)
	if errors.Is(err, library.ErrSongNotFound) {
		s.respondError(w, http.StatusNotFound, "Song not found")
		return
	}
	if err != nil {
		s.log.Errorf("Failed to look up %s: %v", number, err)
		s.respondError(w, http.StatusInternalServerError, "Failed to retrieve song")
		return
	}
	s.respondJSON(w, http.StatusOK, newSongDTO(song))
}

// handleSession handles GET /api/session
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, newSessionResponse(s.session.Render()))
}

// handleQueue handles GET /api/queue
func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	q := s.session.Queue()
	s.respondJSON(w, http.StatusOK, QueueResponse{Queue: q, Count: len(q)})
}

// handleEnqueue handles POST /api/queue
func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	var req EnqueueRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if err := req.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.session.EnqueueNumber(req.Number); err != nil {
		if errors.Is(err, library.ErrSongNotFound) {
			s.respondError(w, http.StatusNotFound, "Song not found")
			return
		}
		s.log.Errorf("Enqueue %s failed: %v", req.Number, err)
		s.respondError(w, http.StatusInternalServerError, "Failed to queue song")
		return
	}

	s.log.Infof("Queued %s via API", req.Number)
	q := s.session.Queue()
	s.respondJSON(w, http.StatusAccepted, QueueResponse{Queue: q, Count: len(q)})
}

// handleKey handles POST /api/keys
func (s *Server) handleKey(w http.ResponseWriter, r *http.Request) {
	var req KeyRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	k, err := parseKey(req.Key)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.session.HandleKey(k)
	s.respondJSON(w, http.StatusOK, newSessionResponse(s.session.Render()))
}

// handleControl builds the POST /api/session/{action} handlers.
func (s *Server) handleControl(action func() error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := action(); err != nil {
			if errors.Is(err, session.ErrNoSong) {
				s.respondError(w, http.StatusConflict, "No song is playing")
				return
			}
			s.respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		s.respondJSON(w, http.StatusOK, newSessionResponse(s.session.Render()))
	}
}
