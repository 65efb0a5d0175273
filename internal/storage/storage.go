// Package storage holds helpers shared by the artifact stores. Each store
// implements population.ArtifactStore: it receives a slash-separated object
// path and returns a URI for the uploaded artifact.
package storage

import (
	"path"
	"strings"
	"time"
)

// ObjectPath builds the key an artifact is uploaded under:
// <prefix>/<yyyy>/<mm>/<dd>/<runID>/<name>. Empty segments are left out.
func ObjectPath(prefix string, at time.Time, runID, name string) string {
	parts := make([]string, 0, 4)
	if p := strings.Trim(prefix, "/"); p != "" {
		parts = append(parts, p)
	}
	if !at.IsZero() {
		parts = append(parts, at.UTC().Format("2006/01/02"))
	}
	if runID != "" {
		parts = append(parts, runID)
	}
	parts = append(parts, path.Base(name))
	return path.Join(parts...)
}
