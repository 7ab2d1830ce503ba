// Package artifacts persists generated documents to the public directory
// and keeps their metadata in badger for the gallery listing.
package artifacts

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/playforge/internal/common"
	"github.com/ternarybob/playforge/internal/interfaces"
	"github.com/ternarybob/playforge/internal/models"
	"github.com/ternarybob/playforge/internal/services/document"
)

const (
	filePrefix    = "generated-"
	fileExt       = ".html"
	unknownPrompt = "Unknown prompt"
)

// Service stores artifacts as files named generated-<id>.html
type Service struct {
	dir       string
	urlPrefix string
	maxFiles  int
	storage   interfaces.ArtifactStorage
	history   interfaces.HistoryLookup
	logger    arbor.ILogger
	mu        sync.Mutex
}

// NewService creates an artifact service rooted at cfg.Dir
func NewService(cfg *common.ArtifactsConfig, storage interfaces.ArtifactStorage, logger arbor.ILogger) *Service {
	maxFiles := cfg.MaxFiles
	if maxFiles <= 0 {
		maxFiles = 20
	}
	return &Service{
		dir:       cfg.Dir,
		urlPrefix: cfg.URLPrefix,
		maxFiles:  maxFiles,
		storage:   storage,
		logger:    logger,
	}
}

// SetHistoryLookup sets the fallback used when an artifact has no stored metadata
func (s *Service) SetHistoryLookup(history interfaces.HistoryLookup) {
	s.history = history
}

// MaxFiles returns the retention limit
func (s *Service) MaxFiles() int {
	return s.maxFiles
}

// Dir returns the directory artifacts are written to
func (s *Service) Dir() string {
	return s.dir
}

// FileName returns the artifact file name for a job ID
func FileName(jobID string) string {
	return filePrefix + jobID + fileExt
}

// jobIDFromName extracts the job ID from an artifact file name
func jobIDFromName(name string) (string, bool) {
	if !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileExt) {
		return "", false
	}
	id := strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileExt)
	return id, id != ""
}

func (s *Service) url(name string) string {
	return path.Join("/", s.urlPrefix, name)
}

// Save prunes old artifacts, writes document and records its metadata
func (s *Service) Save(ctx context.Context, job models.Job, doc string) (models.Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return models.Artifact{}, fmt.Errorf("failed to create artifact directory: %w", err)
	}

	if _, err := s.prune(ctx, s.maxFiles-1); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to prune artifacts before save")
	}

	name := FileName(job.ID)
	if err := os.WriteFile(filepath.Join(s.dir, name), []byte(doc), 0644); err != nil {
		return models.Artifact{}, fmt.Errorf("failed to write artifact %s: %w", name, err)
	}

	now := time.Now()
	meta := &models.ArtifactMetadata{
		Name:      name,
		RequestID: job.ID,
		Prompt:    job.Prompt,
		Mode:      job.Mode,
		Title:     document.Title(doc),
		Size:      int64(len(doc)),
		CreatedAt: now,
	}
	if err := s.storage.Save(ctx, meta); err != nil {
		// The file is served regardless; List falls back to history
		s.logger.Warn().Err(err).Str("name", name).Msg("Failed to store artifact metadata")
	}

	s.logger.Info().
		Str("request_id", job.ID).
		Str("name", name).
		Int64("size", meta.Size).
		Msg("Artifact saved")

	return models.Artifact{
		Name:        name,
		URL:         s.url(name),
		Date:        now.UnixMilli(),
		Size:        meta.Size,
		RequestID:   job.ID,
		Prompt:      job.Prompt,
		CommandType: job.Mode,
		Title:       meta.Title,
	}, nil
}

type fileEntry struct {
	name    string
	size    int64
	modTime time.Time
}

// files returns artifact files, newest first
func (s *Service) files() ([]fileEntry, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact directory: %w", err)
	}

	var files []fileEntry
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), fileExt) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, fileEntry{name: entry.Name(), size: info.Size(), modTime: info.ModTime()})
	}

	sort.SliceStable(files, func(i, j int) bool {
		return files[i].modTime.After(files[j].modTime)
	})
	return files, nil
}

// List returns stored artifacts, newest first
func (s *Service) List(ctx context.Context) ([]models.Artifact, error) {
	s.mu.Lock()
	files, err := s.files()
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	artifacts := make([]models.Artifact, 0, len(files))
	for _, f := range files {
		artifacts = append(artifacts, s.describe(ctx, f))
	}
	return artifacts, nil
}

func (s *Service) describe(ctx context.Context, f fileEntry) models.Artifact {
	artifact := models.Artifact{
		Name:        f.name,
		URL:         s.url(f.name),
		Date:        f.modTime.UnixMilli(),
		Size:        f.size,
		Prompt:      unknownPrompt,
		CommandType: models.ModeCreate,
	}
	if id, ok := jobIDFromName(f.name); ok {
		artifact.RequestID = id
	}

	meta, err := s.storage.Get(ctx, f.name)
	if err == nil {
		artifact.Prompt = meta.Prompt
		artifact.CommandType = meta.Mode
		artifact.Title = meta.Title
		if meta.RequestID != "" {
			artifact.RequestID = meta.RequestID
		}
		return artifact
	}
	if !errors.Is(err, interfaces.ErrArtifactNotFound) {
		s.logger.Warn().Err(err).Str("name", f.name).Msg("Failed to read artifact metadata")
	}

	if s.history != nil && artifact.RequestID != "" {
		if record, ok := s.history.LookupHistory(ctx, artifact.RequestID); ok {
			artifact.Prompt = record.Prompt
			artifact.CommandType = record.CommandType
		}
	}
	return artifact
}

// Prune keeps the newest keep files, removes the rest with their metadata,
// and drops metadata whose file no longer exists
func (s *Service) Prune(ctx context.Context, keep int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prune(ctx, keep)
}

func (s *Service) prune(ctx context.Context, keep int) (int, error) {
	if keep < 0 {
		keep = 0
	}

	files, err := s.files()
	if err != nil {
		return 0, err
	}

	removed := 0
	present := make(map[string]bool, len(files))
	for i, f := range files {
		if i < keep {
			present[f.name] = true
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, f.name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn().Err(err).Str("name", f.name).Msg("Failed to delete artifact")
			present[f.name] = true
			continue
		}
		removed++
		s.logger.Debug().Str("name", f.name).Msg("Deleted old artifact")
	}

	metas, err := s.storage.List(ctx)
	if err != nil {
		return removed, fmt.Errorf("failed to list artifact metadata: %w", err)
	}
	for _, meta := range metas {
		if present[meta.Name] {
			continue
		}
		if err := s.storage.Delete(ctx, meta.Name); err != nil && !errors.Is(err, interfaces.ErrArtifactNotFound) {
			s.logger.Warn().Err(err).Str("name", meta.Name).Msg("Failed to delete artifact metadata")
		}
	}

	if removed > 0 {
		s.logger.Info().Int("removed", removed).Int("kept", len(files)-removed).Msg("Pruned artifacts")
	}
	return removed, nil
}
