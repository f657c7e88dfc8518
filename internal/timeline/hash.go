package timeline

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// hashedContent is the part of the document covered by the timeline hash.
// Revisions and fps are deliberately outside of it.
type hashedContent struct {
	Version      int        `json:"version"`
	Tracks       []Track    `json:"tracks"`
	ExportPreset string     `json:"exportPreset"`
	Resolution   Resolution `json:"resolution"`
}

// Hash returns the hex SHA-256 of {version, tracks, exportPreset, resolution}.
func Hash(s *State) (string, error) {
	c := s.Clone()
	body, err := json.Marshal(hashedContent{
		Version:      c.Version,
		Tracks:       c.Tracks,
		ExportPreset: c.ExportPreset,
		Resolution:   c.Resolution,
	})
	if err != nil {
		return "", fmt.Errorf("hash timeline: %w", err)
	}
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:]), nil
}

var idNamespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("hookforge.timeline"))

// idGen derives ids from the batch position so that the same batch applied
// to the same state always produces the same ids.
type idGen struct {
	version int
	opIndex int
	seq     int
}

func (g *idGen) next(prefix string, parts ...string) string {
	g.seq++
	seed := fmt.Sprintf("%d/%d/%d/%s/%s", g.version, g.opIndex, g.seq, prefix, strings.Join(parts, "/"))
	return prefix + "_" + uuid.NewSHA1(idNamespace, []byte(seed)).String()
}
