package manifest

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// releaseFieldsPerRow is the row width of the upstream release manifest:
// platform, url, sha256.
const releaseFieldsPerRow = 3

// ReleaseSource reads the manifest that upstream attaches to every tagged
// release. The document only lists artifacts of that one version, so rows
// are matched by platform alone.
type ReleaseSource struct {
	// urlTemplate receives the requested version as its single %s substitution.
	urlTemplate string
	client      *http.Client
}

// NewReleaseSource creates a resolver over the upstream release manifest.
// A nil client falls back to http.DefaultClient.
func NewReleaseSource(urlTemplate string, client *http.Client) *ReleaseSource {
	return &ReleaseSource{
		urlTemplate: urlTemplate,
		client:      client,
	}
}

// Resolve fetches the manifest of the requested version and returns the
// single row matching the request's platform.
func (s *ReleaseSource) Resolve(ctx context.Context, req Request) (*Record, error) {
	manifestURL := fmt.Sprintf(s.urlTemplate, req.Version)

	rows, err := fetchRows(ctx, s.client, manifestURL, releaseFieldsPerRow)
	if err != nil {
		return nil, err
	}

	var matches []*Record

	for _, row := range rows {
		if !strings.EqualFold(row[0], req.Platform) {
			continue
		}

		matches = append(matches, &Record{
			URL:    row[1],
			SHA256: row[2],
		})
	}

	return one(matches, req)
}
