package interfaces

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"
)

// DefaultStoreLocation is used when no connection string is configured.
const DefaultStoreLocation = "/tmp/kvstore"

// StoreLocation is the parsed connection descriptor selecting a backend.
type StoreLocation struct {
	Raw    string     // Original connection string, after bare-path rewriting
	Scheme string     // file, s3, http or https
	Host   string     // Bucket for s3, host[:port] for http(s)
	Path   string     // Resource path
	Query  url.Values // Query parameters
	Auth   string     // Authentication info
}

// ParseStoreLocation parses a connection string into a StoreLocation.
//
// An empty string selects DefaultStoreLocation. A string without a URL scheme is
// treated as a filesystem path, made absolute and rewritten to a file:// URL.
// Malformed input and unsupported schemes fail with ErrConfig.
func ParseStoreLocation(raw string) (StoreLocation, error) {
	if raw == "" {
		raw = DefaultStoreLocation
	}

	if !hasScheme(raw) {
		abs, err := filepath.Abs(raw)
		if err != nil {
			return StoreLocation{}, fmt.Errorf("%w: could not resolve path %q: %w", ErrConfig, raw, err)
		}
		raw = (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String()
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return StoreLocation{}, fmt.Errorf("%w: invalid URI format: %w", ErrConfig, err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	switch scheme {
	case "file":
		if parsed.Path == "" && parsed.Host == "" {
			return StoreLocation{}, fmt.Errorf("%w: empty path in file URI: %s", ErrConfig, raw)
		}
	case "s3":
		if parsed.Host == "" {
			return StoreLocation{}, fmt.Errorf("%w: missing bucket in s3 URI: %s", ErrConfig, raw)
		}
	case "http", "https":
		if parsed.Host == "" {
			return StoreLocation{}, fmt.Errorf("%w: missing host in %s URI: %s", ErrConfig, scheme, raw)
		}
	default:
		return StoreLocation{}, fmt.Errorf("%w: unsupported store scheme: %q", ErrConfig, parsed.Scheme)
	}

	var auth string
	if parsed.User != nil {
		auth = parsed.User.String()
	}

	return StoreLocation{
		Raw:    raw,
		Scheme: scheme,
		Host:   parsed.Host,
		Path:   parsed.Path,
		Query:  parsed.Query(),
		Auth:   auth,
	}, nil
}

// hasScheme reports whether s starts with a URL scheme followed by a colon.
// Windows drive letters ("C:\...") are single characters and do not count.
func hasScheme(s string) bool {
	i := strings.Index(s, ":")
	if i < 2 {
		return false
	}
	for j, c := range s[:i] {
		switch {
		case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z':
		case j > 0 && ('0' <= c && c <= '9' || c == '+' || c == '-' || c == '.'):
		default:
			return false
		}
	}
	return true
}

// String returns the connection string.
func (loc StoreLocation) String() string {
	return loc.Raw
}

// IsFile checks if this is a local filesystem location.
func (loc StoreLocation) IsFile() bool {
	return loc.Scheme == "file"
}

// IsS3 checks if this is an S3 location.
func (loc StoreLocation) IsS3() bool {
	return loc.Scheme == "s3"
}

// IsEmbedded checks if this location is served by the embedded engine.
func (loc StoreLocation) IsEmbedded() bool {
	return loc.IsFile() || loc.IsS3()
}

// IsRemote checks if this location is another gateway reached over HTTP.
func (loc StoreLocation) IsRemote() bool {
	return loc.Scheme == "http" || loc.Scheme == "https"
}

// BaseURL returns the location without query parameters, for remote locations.
func (loc StoreLocation) BaseURL() *url.URL {
	return &url.URL{
		Scheme: loc.Scheme,
		Host:   loc.Host,
		Path:   loc.Path,
	}
}

// GetParam returns a query parameter value.
func (loc StoreLocation) GetParam(name string) string {
	return loc.Query.Get(name)
}

// GetParamBool returns a boolean query parameter value, or def when unset.
func (loc StoreLocation) GetParamBool(name string, def bool) bool {
	if !loc.Query.Has(name) {
		return def
	}
	value := loc.Query.Get(name)
	return value == "true" || value == "1" || value == "yes"
}

// GetParamDuration returns a duration query parameter, or def when unset.
// A bare "0" is accepted as zero.
func (loc StoreLocation) GetParamDuration(name string, def time.Duration) (time.Duration, error) {
	value := loc.Query.Get(name)
	if value == "" {
		return def, nil
	}
	if value == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid %s parameter %q: %w", ErrConfig, name, value, err)
	}
	return d, nil
}
