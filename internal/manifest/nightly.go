package manifest

import (
	"context"
	"net/http"
	"strings"
)

// nightlyFieldsPerRow is the row width of the nightly manifest:
// platform, version, linkage, url, sha256.
const nightlyFieldsPerRow = 5

// NightlySource reads the manifest of nightly and static builds. The
// document accumulates artifacts across versions and linkage modes, so
// rows are matched on platform, version and linkage together.
type NightlySource struct {
	url    string
	client *http.Client
}

// NewNightlySource creates a resolver over the nightly-build manifest.
// A nil client falls back to http.DefaultClient.
func NewNightlySource(url string, client *http.Client) *NightlySource {
	return &NightlySource{
		url:    url,
		client: client,
	}
}

// Resolve fetches the nightly manifest and returns the single row matching
// the request's platform, version and linkage. All three comparisons are
// case-insensitive equality, no prefix or fuzzy matching.
func (s *NightlySource) Resolve(ctx context.Context, req Request) (*Record, error) {
	rows, err := fetchRows(ctx, s.client, s.url, nightlyFieldsPerRow)
	if err != nil {
		return nil, err
	}

	var matches []*Record

	for _, row := range rows {
		if !strings.EqualFold(row[0], req.Platform) ||
			!strings.EqualFold(row[1], req.Version) ||
			!strings.EqualFold(row[2], req.Linkage) {
			continue
		}

		matches = append(matches, &Record{
			URL:    row[3],
			SHA256: row[4],
		})
	}

	return one(matches, req)
}
