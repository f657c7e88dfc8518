package export

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/mayowa2133/hookforge/internal/timeline"
)

func GenerateEDL(clips []ResolvedClip, title string, frameRate float64) string {
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

	for i, clip := range clips {
		lines = append(lines,
			fmt.Sprintf("%03d  %-8s %-5s C        %s %s %s %s", i+1, "AX", "V",
				msToTimecode(clip.SourceInMs, fps), msToTimecode(clip.SourceOutMs, fps),
				msToTimecode(clip.RecordInMs, fps), msToTimecode(clip.RecordOutMs, fps)),
			fmt.Sprintf("* FROM CLIP NAME:  %s", clip.ClipName),
		)
		if clip.MediaPath != "" {
			lines = append(lines, fmt.Sprintf("* MEDIA PATH:  %s", clip.MediaPath))
		}
	}

	lines = append(lines, "")
	return strings.Join(lines, "\n")
}

// ResolveVideoClips lists the clips of the lowest-ordered VIDEO track as EDL
// events. mediaPath maps an asset id to a location and may be nil.
func ResolveVideoClips(s *timeline.State, mediaPath func(assetID string) string) []ResolvedClip {
	var video *timeline.Track
	for _, t := range s.TracksOfKind(timeline.TrackKindVideo) {
		if video == nil || t.Order < video.Order {
			video = t
		}
	}
	if video == nil {
		return nil
	}

	clips := make([]ResolvedClip, 0, len(video.Clips))
	for _, c := range video.Clips {
		name := c.Label
		if name == "" {
			name = c.ID
		}
		rc := ResolvedClip{
			ClipName:    name,
			SourceInMs:  c.SourceInMs,
			SourceOutMs: c.SourceOutMs,
			RecordInMs:  c.TimelineInMs,
			RecordOutMs: c.TimelineOutMs,
		}
		if mediaPath != nil && c.AssetID != "" {
			rc.MediaPath = mediaPath(c.AssetID)
		}
		clips = append(clips, rc)
	}
	return clips
}

// TimelineEDL renders the document's main video track at the document fps.
func TimelineEDL(s *timeline.State, title string, mediaPath func(assetID string) string) (string, int) {
	clips := ResolveVideoClips(s, mediaPath)
	return GenerateEDL(clips, title, s.FPS), len(clips)
}

// WriteEDL writes content to dir/name.edl. dir must pass ValidateOutputDir.
func WriteEDL(dir, name, content string) (string, error) {
	if err := ValidateOutputDir(dir); err != nil {
		return "", err
	}
	path := filepath.Join(dir, name+".edl")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return "", fmt.Errorf("failed to write EDL: %w", err)
	}
	return path, nil
}

func msToTimecode(ms int64, fps int) string {
	totalFrames := int64(math.Round(float64(ms) * float64(fps) / 1000.0))
	f := int64(fps)
	frames := totalFrames % f
	totalSeconds := totalFrames / f
	seconds := totalSeconds % 60
	totalMinutes := totalSeconds / 60
	minutes := totalMinutes % 60
	hours := totalMinutes / 60
	return fmt.Sprintf("%02d:%02d:%02d:%02d", hours, minutes, seconds, frames)
}
