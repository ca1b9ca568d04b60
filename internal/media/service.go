package media

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/heimdex/heimdex-timeline/internal/timeline"
)

var (
	ErrNotFound    = errors.New("media file not found")
	ErrUnsupported = errors.New("unsupported media file")
)

// ImportOptions carries metadata the caller probed from the file. Kind is
// derived from the extension when empty.
type ImportOptions struct {
	Name     string
	Kind     timeline.SourceKind
	Duration float64
	HasAudio bool
	Width    int
	Height   int
}

// Service is the media catalog. It keeps an in-memory index of all files so
// the timeline can resolve media IDs without touching the database.
type Service struct {
	repo   Repository
	logger *slog.Logger

	mu    sync.RWMutex
	index map[string]*File
}

func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger, index: make(map[string]*File)}
}

// Load fills the index from the repository.
func (s *Service) Load(ctx context.Context) error {
	files, err := s.repo.ListFiles(ctx)
	if err != nil {
		return fmt.Errorf("list media files: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.index = make(map[string]*File, len(files))
	for _, f := range files {
		s.index[f.ID] = f
	}
	return nil
}

func (s *Service) Import(ctx context.Context, path string, opts ImportOptions) (*File, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("invalid path: %w", err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("path does not exist: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("path is a directory: %w", ErrUnsupported)
	}

	existing, err := s.repo.GetFileByPath(ctx, absPath)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	kind := opts.Kind
	if kind == "" {
		var ok bool
		if kind, ok = KindForPath(absPath); !ok {
			return nil, fmt.Errorf("%s: %w", filepath.Ext(absPath), ErrUnsupported)
		}
	}
	if !kind.Valid() {
		return nil, fmt.Errorf("kind %q: %w", kind, ErrUnsupported)
	}
	if kind != timeline.SourceImage && opts.Duration <= 0 {
		return nil, fmt.Errorf("%s file needs a positive duration: %w", kind, ErrUnsupported)
	}

	name := opts.Name
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(absPath), filepath.Ext(absPath))
	}

	f := &File{
		ID:        NewID(),
		Kind:      kind,
		Path:      absPath,
		Name:      name,
		Duration:  opts.Duration,
		HasAudio:  kind == timeline.SourceVideo && opts.HasAudio,
		Width:     opts.Width,
		Height:    opts.Height,
		CreatedAt: time.Now().UTC(),
	}
	if kind == timeline.SourceImage {
		f.Duration = 0
	}

	if err := s.repo.CreateFile(ctx, f); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.index[f.ID] = f
	s.mu.Unlock()

	if s.logger != nil {
		s.logger.Info("media imported", "media_file_id", f.ID, "kind", f.Kind, "duration", f.Duration)
	}
	return f, nil
}

func (s *Service) Remove(ctx context.Context, id string) error {
	if _, ok := s.lookup(id); !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err := s.repo.DeleteFile(ctx, id); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.index, id)
	s.mu.Unlock()
	return nil
}

func (s *Service) Files(ctx context.Context) ([]*File, error) {
	return s.repo.ListFiles(ctx)
}

func (s *Service) File(ctx context.Context, id string) (*File, error) {
	f, err := s.repo.GetFile(ctx, id)
	if err != nil {
		return nil, err
	}
	if f == nil {
		return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return f, nil
}

func (s *Service) lookup(id string) (*File, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.index[id]
	return f, ok
}

// ResolveMedia implements timeline.MediaResolver.
func (s *Service) ResolveMedia(id string) (timeline.Source, bool) {
	f, ok := s.lookup(id)
	if !ok {
		return timeline.Source{}, false
	}
	return f.Source(), true
}

// MediaPath returns the path of a catalogued file.
func (s *Service) MediaPath(id string) (string, bool) {
	f, ok := s.lookup(id)
	if !ok {
		return "", false
	}
	return f.Path, true
}
