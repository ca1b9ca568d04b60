package export

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/heimdex/heimdex-timeline/internal/timeline"
)

// PathResolver maps media file ids to paths on disk.
type PathResolver interface {
	MediaPath(mediaFileID string) (string, bool)
}

// EventsFromSnapshot lists the clips of the topmost visible video track that
// has clips, in record order. Composition clips and clips whose media cannot
// be resolved are returned as unresolved clip ids.
func EventsFromSnapshot(s timeline.Snapshot, paths PathResolver) (events []Event, unresolved []string) {
	trackID := ""
	for _, tr := range s.Tracks {
		if tr.Kind != timeline.TrackVideo || !tr.Visible {
			continue
		}
		for _, c := range s.Clips {
			if c.TrackID == tr.ID {
				trackID = tr.ID
				break
			}
		}
		if trackID != "" {
			break
		}
	}
	if trackID == "" {
		return nil, nil
	}

	var clips []timeline.ClipSnapshot
	for _, c := range s.Clips {
		if c.TrackID == trackID {
			clips = append(clips, c)
		}
	}
	sort.SliceStable(clips, func(i, j int) bool { return clips[i].StartTime < clips[j].StartTime })

	for _, c := range clips {
		if c.IsComposition {
			unresolved = append(unresolved, c.ID)
			continue
		}
		path, ok := paths.MediaPath(c.MediaFileID)
		if !ok {
			unresolved = append(unresolved, c.ID)
			continue
		}
		name := SanitizeName(c.Name, 160)
		if name == "" {
			name = c.ID
		}
		events = append(events, Event{
			ClipID:    c.ID,
			ClipName:  name,
			MediaPath: path,
			SourceIn:  c.InPoint,
			SourceOut: c.OutPoint,
			RecordIn:  c.StartTime,
			RecordOut: c.StartTime + c.Duration,
			Reversed:  c.Reversed,
		})
	}
	return events, unresolved
}

// GenerateEDL renders events as a CMX3600 EDL. Reversed clips carry an M2
// motion line at negative full speed.
func GenerateEDL(events []Event, title string, frameRate float64) string {
	fps := int(math.Round(frameRate))
	if fps <= 0 {
		fps = 30
	}

	isDropFrame := math.Abs(frameRate-29.97) < 0.01 || math.Abs(frameRate-59.94) < 0.01

	lines := []string{fmt.Sprintf("TITLE: %s", title)}
	if isDropFrame {
		lines = append(lines, "FCM: DROP FRAME")
	} else {
		lines = append(lines, "FCM: NON-DROP FRAME")
	}
	lines = append(lines, "")

	for i, ev := range events {
		srcIn := secondsToTimecode(ev.SourceIn, fps)
		srcOut := secondsToTimecode(ev.SourceOut, fps)
		recIn := secondsToTimecode(ev.RecordIn, fps)
		recOut := secondsToTimecode(ev.RecordOut, fps)

		lines = append(lines,
			fmt.Sprintf("%03d  %-8s %-5s C        %s %s %s %s", i+1, "AX", "V", srcIn, srcOut, recIn, recOut),
		)
		if ev.Reversed {
			lines = append(lines, fmt.Sprintf("M2   %-8s %06.1f                %s", "AX", -float64(fps), srcIn))
		}
		lines = append(lines,
			fmt.Sprintf("* FROM CLIP NAME:  %s", ev.ClipName),
			fmt.Sprintf("* MEDIA PATH:  %s", ev.MediaPath),
		)
	}

	lines = append(lines, "")
	return strings.Join(lines, "\n")
}

func secondsToTimecode(sec float64, fps int) string {
	totalFrames := int(math.Round(sec * float64(fps)))
	if totalFrames < 0 {
		totalFrames = 0
	}
	frames := totalFrames % fps
	totalSeconds := totalFrames / fps
	seconds := totalSeconds % 60
	totalMinutes := totalSeconds / 60
	minutes := totalMinutes % 60
	hours := totalMinutes / 60
	return fmt.Sprintf("%02d:%02d:%02d:%02d", hours, minutes, seconds, frames)
}
