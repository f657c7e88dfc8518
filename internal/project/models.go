package project

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mayowa2133/hookforge/internal/timeline"
)

type Project struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type Asset struct {
	ID         string             `json:"id"`
	ProjectID  string             `json:"project_id"`
	Kind       timeline.TrackKind `json:"kind"`
	Filename   string             `json:"filename"`
	DurationMs int64              `json:"duration_ms"`
	CreatedAt  time.Time          `json:"created_at"`
}

type ConfigEntry struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

var VideoExtensions = map[string]bool{
	".mp4":  true,
	".mov":  true,
	".mkv":  true,
	".webm": true,
}

var AudioExtensions = map[string]bool{
	".mp3": true,
	".wav": true,
	".m4a": true,
	".aac": true,
}

func NewID() string {
	return uuid.NewString()
}

// KindForFilename guesses the asset kind from the file extension. It returns
// "" when the extension is neither a known video nor audio format.
func KindForFilename(filename string) timeline.TrackKind {
	ext := strings.ToLower(filepath.Ext(filename))
	switch {
	case VideoExtensions[ext]:
		return timeline.TrackKindVideo
	case AudioExtensions[ext]:
		return timeline.TrackKindAudio
	}
	return ""
}

// seedAssets converts assets to the engine's seed form, labelling each clip
// with the file name without its extension.
func seedAssets(assets []*Asset) []timeline.SeedAsset {
	seeds := make([]timeline.SeedAsset, 0, len(assets))
	for _, a := range assets {
		seeds = append(seeds, timeline.SeedAsset{
			ID:         a.ID,
			Kind:       a.Kind,
			Label:      strings.TrimSuffix(a.Filename, filepath.Ext(a.Filename)),
			DurationMs: a.DurationMs,
		})
	}
	return seeds
}
