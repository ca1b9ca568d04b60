package export

// Request asks for the active composition, or CompositionID, to be written
// into OutputDir.
type Request struct {
	CompositionID string  `json:"composition_id,omitempty"`
	Format        string  `json:"format"`
	Title         string  `json:"title"`
	FrameRate     float64 `json:"frame_rate"`
	OutputDir     string  `json:"output_dir"`
}

const (
	FormatEDL  = "edl"
	FormatYAML = "yaml"
)

// Event is one EDL edit: a source window placed at a record position.
// Times are in seconds.
type Event struct {
	ClipID    string
	ClipName  string
	MediaPath string
	SourceIn  float64
	SourceOut float64
	RecordIn  float64
	RecordOut float64
	Reversed  bool
}

type Response struct {
	Status          string   `json:"status"`
	Format          string   `json:"format"`
	OutputPath      string   `json:"output_path"`
	EventCount      int      `json:"event_count"`
	UnresolvedClips []string `json:"unresolved_clips"`
}
