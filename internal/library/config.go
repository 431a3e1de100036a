package library

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/himanishpuri/KaraokeCore/internal/model"
	"github.com/himanishpuri/KaraokeCore/pkg/utils"
)

// ConfigFile is the per-song config name looked up in every song folder.
const ConfigFile = "config.json"

// SongConfig is the on-disk song description. Asset paths are relative to the
// folder holding the config unless absolute.
type SongConfig struct {
	Number        string `json:"number"`
	Title         string `json:"title"`
	TitleTranslit string `json:"title_translit,omitempty"`
	Artist        string `json:"artist"`
	Charter       string `json:"charter"`
	Lyricist      string `json:"lyricist"`
	SongPath      string `json:"song_path"`
	LyricPath     string `json:"lyric_path"`
	BgPath        string `json:"bg_path,omitempty"`
	JudgementPath string `json:"judgement_path"`
}

// Song resolves the config against dir.
func (c *SongConfig) Song(dir string) *model.Song {
	return &model.Song{
		Number:        c.Number,
		Title:         c.Title,
		TitleTranslit: c.TitleTranslit,
		Artist:        c.Artist,
		Charter:       c.Charter,
		Lyricist:      c.Lyricist,
		SongPath:      utils.ResolvePath(dir, c.SongPath),
		BgPath:        utils.ResolvePath(dir, c.BgPath),
		LyricPath:     utils.ResolvePath(dir, c.LyricPath),
		JudgementPath: utils.ResolvePath(dir, c.JudgementPath),
	}
}

// LoadSongConfig reads a config file and returns the resolved song.
func LoadSongConfig(path string) (*model.Song, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading song config: %w", err)
	}

	var cfg SongConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing song config %s: %w", path, err)
	}
	if cfg.Number == "" {
		return nil, fmt.Errorf("song config %s: missing number", path)
	}
	if cfg.SongPath == "" {
		return nil, fmt.Errorf("song config %s: missing song_path", path)
	}
	return cfg.Song(filepath.Dir(path)), nil
}

// ScanDir loads <root>/*/config.json. Folders without a config are ignored;
// broken configs are skipped and reported in the joined error, so callers get
// every readable song even when some fail.
func ScanDir(root string) ([]*model.Song, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("scanning song folders: %w", err)
	}

	var songs []*model.Song
	var errs []error
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		cfgPath := filepath.Join(root, entry.Name(), ConfigFile)
		if !utils.FileExists(cfgPath) {
			continue
		}
		song, err := LoadSongConfig(cfgPath)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		songs = append(songs, song)
	}

	sort.Slice(songs, func(i, j int) bool {
		return songs[i].Number < songs[j].Number
	})
	return songs, errors.Join(errs...)
}
