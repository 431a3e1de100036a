package main

import (
	"fmt"
	"strings"

	"github.com/himanishpuri/KaraokeCore/internal/model"
	"github.com/himanishpuri/KaraokeCore/internal/session"
)

// EnqueueRequest is the request body for POST /api/queue
type EnqueueRequest struct {
	Number string `json:"number"`
}

// Validate checks if the request is valid
func (r *EnqueueRequest) Validate() error {
	r.Number = strings.TrimSpace(r.Number)
	if r.Number == "" {
		return fmt.Errorf("number is required")
	}
	return nil
}

// KeyRequest is the request body for POST /api/keys. Key is a digit or one of
// enter, next, escape, speed, pause.
type KeyRequest struct {
	Key string `json:"key"`
}

var namedKeys = map[string]session.Key{
	"enter":  session.KeyEnter,
	"next":   session.KeyNext,
	"escape": session.KeyEscape,
	"speed":  session.KeySpeed,
	"pause":  session.KeyPause,
}

func parseKey(s string) (session.Key, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) == 1 && s[0] >= '0' && s[0] <= '9' {
		return session.DigitKey(int(s[0] - '0')), nil
	}
	if k, ok := namedKeys[s]; ok {
		return k, nil
	}
	return 0, fmt.Errorf("unknown key %q", s)
}

// SongDTO represents a song in API responses
type SongDTO struct {
	Number       string `json:"number"`
	Title        string `json:"title"`
	Artist       string `json:"artist"`
	Charter      string `json:"charter,omitempty"`
	Lyricist     string `json:"lyricist,omitempty"`
	HasLyrics    bool   `json:"has_lyrics"`
	HasJudgement bool   `json:"has_judgement"`
}

func newSongDTO(s *model.Song) *SongDTO {
	if s == nil {
		return nil
	}
	return &SongDTO{
		Number:       s.Number,
		Title:        s.Title,
		Artist:       s.Artist,
		Charter:      s.Charter,
		Lyricist:     s.Lyricist,
		HasLyrics:    s.LyricPath != "",
		HasJudgement: s.JudgementPath != "",
	}
}

// ListSongsResponse is the response for GET /api/songs
type ListSongsResponse struct {
	Songs []SongDTO `json:"songs"`
	Count int       `json:"count"`
	Query string    `json:"query,omitempty"`
}

// QueueResponse is the response for queue operations
type QueueResponse struct {
	Queue []string `json:"queue"`
	Count int      `json:"count"`
}

type LyricLineDTO struct {
	Text     string  `json:"text"`
	Visible  bool    `json:"visible"`
	Progress float64 `json:"progress"`
}

type LyricsDTO struct {
	TitleVisible bool         `json:"title_visible"`
	Countdown    string       `json:"countdown,omitempty"`
	Cooldown     bool         `json:"cooldown"`
	Top          LyricLineDTO `json:"top"`
	Bottom       LyricLineDTO `json:"bottom"`
}

type JudgementDTO struct {
	Enabled bool   `json:"enabled"`
	Score   int    `json:"score"`
	Hits    int    `json:"hits"`
	Total   int    `json:"total"`
	Volume  int    `json:"volume"`
	Note    string `json:"note,omitempty"`
}

type SelectorDTO struct {
	Visible bool   `json:"visible"`
	Number  string `json:"number"`
	Title   string `json:"title,omitempty"`
	Found   bool   `json:"found"`
}

type ScoreboardDTO struct {
	Visible bool   `json:"visible"`
	Score   int    `json:"score"`
	Comment string `json:"comment"`
}

// SessionResponse is the response for GET /api/session
type SessionResponse struct {
	State         string        `json:"state"`
	PerformanceID string        `json:"performance_id,omitempty"`
	Song          *SongDTO      `json:"song,omitempty"`
	Position      float64       `json:"position"`
	Duration      float64       `json:"duration"`
	Meta          string        `json:"meta,omitempty"`
	Fast          bool          `json:"fast"`
	Queue         []string      `json:"queue"`
	Selector      SelectorDTO   `json:"selector"`
	Lyrics        LyricsDTO     `json:"lyrics"`
	Judgement     JudgementDTO  `json:"judgement"`
	Scoreboard    ScoreboardDTO `json:"scoreboard"`
}

func newSessionResponse(r session.RenderState) SessionResponse {
	return SessionResponse{
		State:         r.State.String(),
		PerformanceID: r.PerformanceID,
		Song:          newSongDTO(r.Song),
		Position:      r.Position,
		Duration:      r.Duration,
		Meta:          r.Meta,
		Fast:          r.Fast,
		Queue:         r.Queue,
		Selector: SelectorDTO{
			Visible: r.Selector.Visible,
			Number:  r.Selector.Number,
			Title:   r.Selector.Title,
			Found:   r.Selector.Found,
		},
		Lyrics: LyricsDTO{
			TitleVisible: r.Lyrics.TitleVisible,
			Countdown:    r.Lyrics.CountdownText,
			Cooldown:     r.Lyrics.CooldownVisible,
			Top:          LyricLineDTO{r.Lyrics.Top.Text, r.Lyrics.Top.Visible, r.Lyrics.Top.Progress},
			Bottom:       LyricLineDTO{r.Lyrics.Bottom.Text, r.Lyrics.Bottom.Visible, r.Lyrics.Bottom.Progress},
		},
		Judgement: JudgementDTO{
			Enabled: r.JudgementEnabled,
			Score:   r.Score,
			Hits:    r.Hits,
			Total:   r.Total,
			Volume:  r.Volume,
			Note:    r.Note,
		},
		Scoreboard: ScoreboardDTO{
			Visible: r.Scoreboard.Visible,
			Score:   r.Scoreboard.Score,
			Comment: r.Scoreboard.Comment,
		},
	}
}

// MetricsResponse provides server health and catalog metrics
type MetricsResponse struct {
	Status       string `json:"status"`
	DatabasePath string `json:"database_path"`
	SongCount    int    `json:"song_count"`
	SampleRate   int    `json:"sample_rate"`
	SessionState string `json:"session_state"`
}

// ErrorResponse is the standard error response format
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code,omitempty"`
}
