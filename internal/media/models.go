package media

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/heimdex/heimdex-timeline/internal/timeline"
)

// File is an imported media file that clips can reference by ID.
type File struct {
	ID        string              `json:"id"`
	Kind      timeline.SourceKind `json:"kind"`
	Path      string              `json:"path"`
	Name      string              `json:"name"`
	Duration  float64             `json:"duration"`
	HasAudio  bool                `json:"has_audio"`
	Width     int                 `json:"width"`
	Height    int                 `json:"height"`
	CreatedAt time.Time           `json:"created_at"`
}

// Source converts the file into what the timeline places.
func (f *File) Source() timeline.Source {
	src := timeline.Source{
		Kind:        f.Kind,
		MediaFileID: f.ID,
		Name:        f.Name,
		Duration:    f.Duration,
		NoAudio:     !f.HasAudio,
	}
	if f.Kind == timeline.SourceImage {
		src.Duration = 0
	}
	return src
}

var extensionKinds = map[string]timeline.SourceKind{
	".mp4":  timeline.SourceVideo,
	".mov":  timeline.SourceVideo,
	".mkv":  timeline.SourceVideo,
	".webm": timeline.SourceVideo,
	".mp3":  timeline.SourceAudio,
	".wav":  timeline.SourceAudio,
	".aac":  timeline.SourceAudio,
	".m4a":  timeline.SourceAudio,
	".flac": timeline.SourceAudio,
	".ogg":  timeline.SourceAudio,
	".png":  timeline.SourceImage,
	".jpg":  timeline.SourceImage,
	".jpeg": timeline.SourceImage,
	".gif":  timeline.SourceImage,
	".webp": timeline.SourceImage,
}

// KindForPath classifies a file by extension. ok is false for unsupported
// files.
func KindForPath(path string) (timeline.SourceKind, bool) {
	kind, ok := extensionKinds[strings.ToLower(filepath.Ext(path))]
	return kind, ok
}

func NewID() string {
	return uuid.NewString()
}
