package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mayowa2133/hookforge/internal/features"
	"github.com/mayowa2133/hookforge/internal/timeline"
)

// assetFile is the layout of the file passed to init.
type assetFile struct {
	Assets []struct {
		ID         string `yaml:"id"`
		Kind       string `yaml:"kind"`
		Label      string `yaml:"label"`
		DurationMs int64  `yaml:"duration_ms"`
	} `yaml:"assets"`
}

func isJSON(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".json")
}

// readAsJSON returns the file as JSON, converting YAML files first.
func readAsJSON(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if isJSON(path) {
		return data, nil
	}
	var v any
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	out, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("convert %s to JSON: %w", path, err)
	}
	return out, nil
}

func readTimeline(path string) (*timeline.State, error) {
	data, err := readAsJSON(path)
	if err != nil {
		return nil, err
	}
	return timeline.Decode(data)
}

// readOperations accepts either a bare list or an object with an
// "operations" key.
func readOperations(path string) ([]timeline.Operation, error) {
	data, err := readAsJSON(path)
	if err != nil {
		return nil, err
	}
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "{") {
		var wrapped struct {
			Operations json.RawMessage `json:"operations"`
		}
		if err := json.Unmarshal(data, &wrapped); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		data = wrapped.Operations
	}
	return timeline.DecodeOperations(data)
}

func readSeedAssets(path string) ([]timeline.SeedAsset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f assetFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	seeds := make([]timeline.SeedAsset, 0, len(f.Assets))
	for i, a := range f.Assets {
		kind := timeline.TrackKind(strings.ToUpper(a.Kind))
		if kind != timeline.TrackKindVideo && kind != timeline.TrackKindAudio {
			return nil, fmt.Errorf("asset %d: kind must be VIDEO or AUDIO", i)
		}
		id := a.ID
		if id == "" {
			id = fmt.Sprintf("asset_%03d", i)
		}
		seeds = append(seeds, timeline.SeedAsset{ID: id, Kind: kind, Label: a.Label, DurationMs: a.DurationMs})
	}
	return seeds, nil
}

func readRules(path string) (features.AutoEditRequest, error) {
	var req features.AutoEditRequest
	data, err := os.ReadFile(path)
	if err != nil {
		return req, err
	}
	if err := yaml.Unmarshal(data, &req); err != nil {
		return req, fmt.Errorf("parse %s: %w", path, err)
	}
	return req, nil
}

// writeTimeline writes s as indented JSON to path, or to stdout for "" and "-".
func writeTimeline(w io.Writer, path string, s *timeline.State) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	if path == "" || path == "-" {
		_, err := w.Write(data)
		return err
	}
	return os.WriteFile(path, data, 0644)
}
