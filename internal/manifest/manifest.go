package manifest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/oshokin/tiledb-fetch/internal/config"
)

// Sentinel values recognized in install requests.
const (
	// VersionMain requests the current development build rather than a release.
	VersionMain = "main"

	// LinkageDynamic selects artifacts built for dynamic linking.
	LinkageDynamic = "dynamic"
	// LinkageStatic selects artifacts built for static linking.
	LinkageStatic = "static"
)

var (
	// ErrNotFound is returned when no manifest row matches the request.
	ErrNotFound = errors.New("no release found")
	// ErrAmbiguous is returned when more than one manifest row matches the
	// request. This indicates a manifest defect, never resolved by picking
	// the first match.
	ErrAmbiguous = errors.New("ambiguous release")

	// errBadHTTPStatus is returned when a manifest endpoint answers with a
	// non-success status.
	errBadHTTPStatus = errors.New("unexpected http status")
	// errMalformedRow is returned when a manifest row has the wrong number
	// of fields for its variant.
	errMalformedRow = errors.New("malformed manifest row")
)

// Record identifies the single downloadable artifact a request resolved to.
type Record struct {
	// URL is the location of the artifact archive.
	URL string
	// SHA256 is the hex digest the downloaded archive must hash to.
	SHA256 string
}

// Request carries the inputs manifest rows are matched against.
type Request struct {
	// Version is a release identifier or the VersionMain sentinel.
	Version string
	// Linkage is LinkageDynamic or LinkageStatic.
	Linkage string
	// Platform is the resolved "{os}-{arch}" tag.
	Platform string
}

// Source answers which single artifact satisfies a request.
// Exactly one implementation is consulted per run.
type Source interface {
	Resolve(ctx context.Context, req Request) (*Record, error)
}

// Select picks the manifest variant for the request. Upstream releases
// only publish dynamic builds of tagged versions, so development builds
// and static linkage both route to the nightly manifest.
func Select(cfg *config.Config, client *http.Client, req Request) Source {
	if req.Version == VersionMain || req.Linkage == LinkageStatic {
		return NewNightlySource(cfg.NightlyManifestURL, client)
	}

	return NewReleaseSource(cfg.ReleaseManifestURL, client)
}

// fetchRows downloads a manifest document and splits it into rows of the
// expected width. The format is headerless comma-separated text with no
// escaping: every non-empty line is a data row of opaque fields.
func fetchRows(ctx context.Context, client *http.Client, manifestURL string, fieldsPerRow int) ([][]string, error) {
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, manifestURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("build manifest request: %w", err)
	}

	response, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch manifest %s: %w", manifestURL, err)
	}

	defer func() {
		_ = response.Body.Close()
	}()

	if response.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch manifest %s: %s: %w", manifestURL, response.Status, errBadHTTPStatus)
	}

	data, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, fmt.Errorf("read manifest %s: %w", manifestURL, err)
	}

	var rows [][]string

	for lineNumber, line := range strings.Split(string(data), "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}

		fields := strings.Split(line, ",")
		if len(fields) != fieldsPerRow {
			return nil, fmt.Errorf("%s line %d: expected %d fields, got %d: %w",
				manifestURL, lineNumber+1, fieldsPerRow, len(fields), errMalformedRow)
		}

		for i, field := range fields {
			fields[i] = strings.TrimSpace(field)
		}

		rows = append(rows, fields)
	}

	return rows, nil
}

// one reduces the collected matches to exactly one record.
// Zero or multiple matches are both fatal.
func one(matches []*Record, req Request) (*Record, error) {
	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return nil, fmt.Errorf("%w for version %s on platform %s", ErrNotFound, req.Version, req.Platform)
	default:
		return nil, fmt.Errorf("%w for version %s on platform %s: %d rows match",
			ErrAmbiguous, req.Version, req.Platform, len(matches))
	}
}
