package export

import (
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/heimdex/heimdex-timeline/internal/timeline"
)

func TestMarshalYAML_UsesJSONNames(t *testing.T) {
	s := timeline.Snapshot{
		Tracks: []timeline.Track{{ID: "v1", Name: "Video 1", Kind: timeline.TrackVideo, Visible: true}},
		Clips:  []timeline.ClipSnapshot{{ID: "c1", TrackID: "v1", StartTime: 1.5, Duration: 2}},
		Zoom:   50,
	}

	out, err := MarshalYAML(s)
	if err != nil {
		t.Fatalf("MarshalYAML() error = %v", err)
	}
	if !strings.Contains(string(out), "start_time: 1.5") {
		t.Errorf("yaml missing start_time: %s", out)
	}

	var doc map[string]any
	if err := yaml.Unmarshal(out, &doc); err != nil {
		t.Fatalf("yaml.Unmarshal() error = %v", err)
	}
	clips, ok := doc["clips"].([]any)
	if !ok || len(clips) != 1 {
		t.Fatalf("clips = %#v", doc["clips"])
	}
}
