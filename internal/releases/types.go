package releases

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// DefaultChannel is used when no channel is requested.
const DefaultChannel = "stable"

// Metadata describes one published release.
type Metadata struct {
	Version      string                   `json:"version"`
	Channel      string                   `json:"channel,omitempty"`
	ReleaseNotes string                   `json:"release_notes,omitempty"`
	ReleasedAt   *time.Time               `json:"released_at,omitempty"`
	Platforms    map[string]PlatformEntry `json:"platforms"`
}

// PlatformEntry is the artifact published for one platform.
type PlatformEntry struct {
	// Checksum is the hex SHA-256 of the artifact.
	Checksum string `json:"checksum"`
	Size     int64  `json:"size"`
	// Path is the object path of the artifact in release storage. The
	// presigned URL for it must end with this path.
	Path string `json:"path"`
	// Signature is an optional minisign signature of the artifact.
	Signature string `json:"signature,omitempty"`
}

// Entry returns the artifact for platform.
func (m *Metadata) Entry(platform string) (*PlatformEntry, error) {
	e, ok := m.Platforms[platform]
	if !ok {
		return nil, fmt.Errorf("release %s has no build for %s (available: %s)",
			m.Version, platform, strings.Join(m.PlatformNames(), ", "))
	}
	return &e, nil
}

// PlatformNames returns the published platforms in sorted order.
func (m *Metadata) PlatformNames() []string {
	names := make([]string, 0, len(m.Platforms))
	for name := range m.Platforms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CheckSize rejects artifacts larger than max before anything is downloaded.
func (e *PlatformEntry) CheckSize(max int64) error {
	if max > 0 && e.Size > max {
		return fmt.Errorf("release artifact is %d bytes, above the %d byte limit", e.Size, max)
	}
	return nil
}

// ArchiveName is the artifact's file name, taken from its path.
func (e *PlatformEntry) ArchiveName() string {
	if i := strings.LastIndex(e.Path, "/"); i >= 0 {
		return e.Path[i+1:]
	}
	return e.Path
}

// DownloadLocation is a short-lived presigned URL for an artifact.
type DownloadLocation struct {
	URL       string
	ExpiresAt time.Time
}

type downloadResponse struct {
	DownloadURL string `json:"download_url"`
	ExpiresIn   int64  `json:"expires_in"`
}
