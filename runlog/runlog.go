// Package runlog keeps a history of pipeline runs, as a JSON state file next
// to each run's outputs and optionally as rows in a database.
package runlog

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"prompt-video-pipeline/types"
)

// Run is one row of run history
type Run struct {
	ID          uint   `gorm:"primaryKey"`
	RunID       string `gorm:"size:64;uniqueIndex"`
	Prompt      string `gorm:"size:2048"`
	Duration    string `gorm:"size:8"`
	Language    string `gorm:"size:8"`
	Gender      string `gorm:"size:8"`
	Style       string `gorm:"size:64"`
	Success     bool   `gorm:"index"`
	Stage       string `gorm:"size:32"`
	ErrorKind   string `gorm:"size:32"`
	Error       string `gorm:"size:1024"`
	Message     string `gorm:"size:1024"`
	AudioURL    string `gorm:"size:1024"`
	ImageCount  int
	VideoPath   string `gorm:"size:1024"`
	YouTubeURL  string `gorm:"size:256"`
	StartedAt   time.Time
	CompletedAt time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (Run) TableName() string {
	return "pipeline_runs"
}

// Store writes run history with gorm
type Store struct {
	db *gorm.DB
}

// Open connects to sqlite or postgres and migrates the schema
func Open(driver, dsn string) (*Store, error) {
	var dialector gorm.Dialector
	switch driver {
	case "sqlite":
		if dir := filepath.Dir(dsn); dsn != ":memory:" && dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, err
			}
		}
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	return NewStore(db)
}

func NewStore(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&Run{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Save inserts or updates the row for state.RunID
func (s *Store) Save(ctx context.Context, state *types.PipelineState) error {
	row := FromState(state)
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "run_id"}},
		UpdateAll: true,
	}).Create(&row).Error
}

// Get returns the row of a run
func (s *Store) Get(ctx context.Context, runID string) (*Run, error) {
	var row Run
	if err := s.db.WithContext(ctx).Where("run_id = ?", runID).First(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

// Recent returns the latest runs, newest first
func (s *Store) Recent(ctx context.Context, limit int) ([]Run, error) {
	var rows []Run
	err := s.db.WithContext(ctx).Order("started_at DESC").Limit(limit).Find(&rows).Error
	return rows, err
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// FromState flattens a run state into a history row
func FromState(state *types.PipelineState) Run {
	req := state.Request
	row := Run{
		RunID:      state.RunID,
		Prompt:     req.Prompt,
		Duration:   req.Duration,
		Language:   req.Language,
		Gender:     req.Gender,
		Style:      req.Style,
		Error:      state.Error,
		YouTubeURL: state.YouTubeURL,
	}
	row.StartedAt, _ = time.Parse(time.RFC3339, state.StartedAt)
	row.CompletedAt, _ = time.Parse(time.RFC3339, state.CompletedAt)

	if res := state.Result; res != nil {
		row.Success = res.Success
		row.Stage = res.Stage
		row.ErrorKind = string(types.KindOf(res.Err))
		row.Message = res.Message
		row.AudioURL = res.AudioURL
		row.VideoPath = res.VideoPath
		if row.Error == "" {
			row.Error = res.Error
		}
		for _, u := range res.ImageURLs {
			if strings.TrimSpace(u) != "" {
				row.ImageCount++
			}
		}
	}
	return row
}

// SaveState writes pipeline_state.json into dir
func SaveState(state *types.PipelineState, dir string) error {
	return SaveJSON(filepath.Join(dir, "pipeline_state.json"), state)
}

// SaveJSON writes v as indented JSON, creating the parent directory
func SaveJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Printf("Warning: could not marshal JSON for %s: %v", path, err)
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		log.Printf("Warning: could not save %s: %v", path, err)
		return err
	}
	return nil
}
