package library

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/himanishpuri/KaraokeCore/internal/model"
	"github.com/himanishpuri/KaraokeCore/pkg/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

const DefaultDBFile = "karaoke.sqlite3"

var ErrSongNotFound = errors.New("song not found")

// Library hands out fully populated songs by catalog number.
type Library interface {
	FindByNumber(number string) (*model.Song, error)
	List() ([]*model.Song, error)
	// Search returns songs whose transliterated title, title or artist
	// contains query ignoring case, or whose number contains it. A blank
	// query matches everything.
	Search(query string) ([]*model.Song, error)
}

// songRecord is the sqlite row for a song.
type songRecord struct {
	ID            string `gorm:"primaryKey;type:varchar(36)"`
	Number        string `gorm:"uniqueIndex:idx_song_number;not null"`
	Title         string `gorm:"index:idx_song_meta,priority:1"`
	TitleTranslit string
	Artist        string `gorm:"index:idx_song_meta,priority:2"`
	Charter       string
	Lyricist      string
	SongPath      string
	BgPath        string
	LyricPath     string
	JudgementPath string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (songRecord) TableName() string {
	return "songs"
}

func (r *songRecord) song() *model.Song {
	return &model.Song{
		Number:        r.Number,
		Title:         r.Title,
		TitleTranslit: r.TitleTranslit,
		Artist:        r.Artist,
		Charter:       r.Charter,
		Lyricist:      r.Lyricist,
		SongPath:      r.SongPath,
		BgPath:        r.BgPath,
		LyricPath:     r.LyricPath,
		JudgementPath: r.JudgementPath,
	}
}

// Entry is a catalog row as listed to users.
type Entry struct {
	Song       *model.Song
	ImportedAt time.Time
}

// Catalog is a sqlite song index keyed by catalog number.
type Catalog struct {
	DB *gorm.DB
	db *sql.DB
}

// OpenCatalog opens the catalog at KARAOKE_DB_PATH, or DefaultDBFile.
func OpenCatalog() (*Catalog, error) {
	dbPath := os.Getenv("KARAOKE_DB_PATH")
	if dbPath == "" {
		dbPath = DefaultDBFile
	}
	return OpenCatalogWithPath(dbPath)
}

func OpenCatalogWithPath(dbPath string) (*Catalog, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := utils.MakeDir(dir); err != nil {
			return nil, fmt.Errorf("creating db dir: %w", err)
		}
	}

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	}

	db, err := gorm.Open(sqlite.Open(dbPath), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting sql.DB from gorm: %w", err)
	}

	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&songRecord{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("auto migrate: %w", err)
	}

	return &Catalog{DB: db, db: sqlDB}, nil
}

func (c *Catalog) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

// Import upserts songs by number and returns how many rows were written.
func (c *Catalog) Import(songs []*model.Song) (int, error) {
	if len(songs) == 0 {
		return 0, nil
	}

	records := make([]songRecord, 0, len(songs))
	for _, s := range songs {
		if s == nil || s.Number == "" {
			continue
		}
		records = append(records, songRecord{
			ID:            uuid.NewString(),
			Number:        s.Number,
			Title:         s.Title,
			TitleTranslit: s.TitleTranslit,
			Artist:        s.Artist,
			Charter:       s.Charter,
			Lyricist:      s.Lyricist,
			SongPath:      s.SongPath,
			BgPath:        s.BgPath,
			LyricPath:     s.LyricPath,
			JudgementPath: s.JudgementPath,
		})
	}
	if len(records) == 0 {
		return 0, nil
	}

	err := c.DB.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "number"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"title", "title_translit", "artist", "charter", "lyricist",
			"song_path", "bg_path", "lyric_path", "judgement_path", "updated_at",
		}),
	}).CreateInBatches(&records, 100).Error
	if err != nil {
		return 0, fmt.Errorf("importing songs: %w", err)
	}
	return len(records), nil
}

func (c *Catalog) FindByNumber(number string) (*model.Song, error) {
	var rec songRecord
	err := c.DB.Where("number = ?", number).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%s: %w", number, ErrSongNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying song %s: %w", number, err)
	}
	return rec.song(), nil
}

func (c *Catalog) List() ([]*model.Song, error) {
	entries, err := c.Entries()
	if err != nil {
		return nil, err
	}
	songs := make([]*model.Song, len(entries))
	for i, e := range entries {
		songs[i] = e.Song
	}
	return songs, nil
}

func (c *Catalog) Search(query string) ([]*model.Song, error) {
	entries, err := c.SearchEntries(query)
	if err != nil {
		return nil, err
	}
	songs := make([]*model.Song, len(entries))
	for i, e := range entries {
		songs[i] = e.Song
	}
	return songs, nil
}

// SearchEntries is Search with import times, ordered by number.
func (c *Catalog) SearchEntries(query string) ([]Entry, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return c.Entries()
	}

	pattern := "%" + likeEscaper.Replace(strings.ToLower(query)) + "%"
	var recs []songRecord
	err := c.DB.
		Where(`lower(title_translit) LIKE ? ESCAPE '\' OR lower(title) LIKE ? ESCAPE '\' OR lower(artist) LIKE ? ESCAPE '\' OR number LIKE ? ESCAPE '\'`,
			pattern, pattern, pattern, pattern).
		Order("number").
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("searching songs for %q: %w", query, err)
	}
	return toEntries(recs), nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

// Entries lists every song ordered by number with its import time.
func (c *Catalog) Entries() ([]Entry, error) {
	var recs []songRecord
	if err := c.DB.Order("number").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("listing songs: %w", err)
	}
	return toEntries(recs), nil
}

func toEntries(recs []songRecord) []Entry {
	entries := make([]Entry, len(recs))
	for i := range recs {
		entries[i] = Entry{Song: recs[i].song(), ImportedAt: recs[i].UpdatedAt}
	}
	return entries
}

// Delete removes a song by number.
func (c *Catalog) Delete(number string) error {
	res := c.DB.Where("number = ?", number).Delete(&songRecord{})
	if res.Error != nil {
		return fmt.Errorf("deleting song %s: %w", number, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%s: %w", number, ErrSongNotFound)
	}
	return nil
}

// Memory is an in-process Library, used when no catalog database is wanted.
type Memory struct {
	songs map[string]*model.Song
	order []string
}

func NewMemory(songs ...*model.Song) *Memory {
	m := &Memory{songs: make(map[string]*model.Song)}
	for _, s := range songs {
		m.Add(s)
	}
	return m
}

// Add inserts or replaces a song by number.
func (m *Memory) Add(song *model.Song) {
	if song == nil {
		return
	}
	if _, ok := m.songs[song.Number]; !ok {
		m.order = append(m.order, song.Number)
	}
	m.songs[song.Number] = song
}

func (m *Memory) FindByNumber(number string) (*model.Song, error) {
	if s, ok := m.songs[number]; ok {
		return s, nil
	}
	return nil, fmt.Errorf("%s: %w", number, ErrSongNotFound)
}

func (m *Memory) Search(query string) ([]*model.Song, error) {
	query = strings.ToLower(strings.TrimSpace(query))
	out := make([]*model.Song, 0)
	for _, n := range m.order {
		if song := m.songs[n]; matchesQuery(song, query) {
			out = append(out, song)
		}
	}
	return out, nil
}

func matchesQuery(song *model.Song, query string) bool {
	if query == "" {
		return true
	}
	return strings.Contains(strings.ToLower(song.TitleTranslit), query) ||
		strings.Contains(strings.ToLower(song.Title), query) ||
		strings.Contains(strings.ToLower(song.Artist), query) ||
		strings.Contains(song.Number, query)
}

func (m *Memory) List() ([]*model.Song, error) {
	out := make([]*model.Song, 0, len(m.order))
	for _, n := range m.order {
		out = append(out, m.songs[n])
	}
	return out, nil
}
