package objstore

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/ruteri/kvgateway/interfaces"
)

const defaultRegion = "us-east-1"

// ObjectStoreFor creates the object storage target for an embedded-engine location.
//
//   - file:// - the local filesystem, rooted at "/"
//   - s3://    - the named bucket, with ETag-match conditional writes
//
// Any other scheme fails with interfaces.ErrConfig. Use EnginePath to find where
// inside the target the engine is rooted.
func ObjectStoreFor(loc interfaces.StoreLocation, log *slog.Logger) (interfaces.ObjectStore, error) {
	switch loc.Scheme {
	case "s3":
		return createS3Store(loc, log)
	case "file":
		log.Debug("Creating file object store", slog.String("uri", loc.String()))
		return NewFileStore("/", log)
	default:
		return nil, fmt.Errorf("%w: invalid object store scheme: %q", interfaces.ErrConfig, loc.Scheme)
	}
}

// EnginePath returns the canonical path inside the object storage target at
// which the engine is rooted. Duplicate slashes and dot segments are removed,
// so equivalent descriptors name the same engine objects.
//
// For file:// URIs with a host other than localhost (file://./relative/path)
// the host is the first path element and the result is resolved against the
// working directory.
func EnginePath(loc interfaces.StoreLocation) (string, error) {
	p := loc.Path
	if loc.IsFile() && loc.Host != "" && loc.Host != "localhost" {
		abs, err := filepath.Abs(filepath.FromSlash(loc.Host + "/" + strings.TrimPrefix(p, "/")))
		if err != nil {
			return "", fmt.Errorf("%w: invalid file path: %w", interfaces.ErrConfig, err)
		}
		p = filepath.ToSlash(abs)
	}
	return cleanRoot(p), nil
}

// cleanRoot canonicalises a slash-separated root. The bucket or filesystem root
// is returned as "".
func cleanRoot(p string) string {
	p = path.Clean("/" + p)
	if p == "/" {
		return ""
	}
	return p
}

// createS3Store creates an S3 or S3-compatible object store.
// URI format: s3://[ACCESS_KEY:SECRET_KEY@]bucket-name/path/?region=us-west-2&endpoint=http://minio:9000
//
// Region and endpoint fall back to AWS_REGION/AWS_DEFAULT_REGION and
// AWS_ENDPOINT_URL/AWS_ENDPOINT. Credentials otherwise come from the ambient
// AWS credential chain.
func createS3Store(loc interfaces.StoreLocation, log *slog.Logger) (interfaces.ObjectStore, error) {
	log.Debug("Creating S3 object store", slog.String("bucket", loc.Host))

	region := firstNonEmpty(loc.GetParam("region"), os.Getenv("AWS_REGION"), os.Getenv("AWS_DEFAULT_REGION"), defaultRegion)
	endpoint := firstNonEmpty(loc.GetParam("endpoint"), os.Getenv("AWS_ENDPOINT_URL"), os.Getenv("AWS_ENDPOINT"))

	cfg := S3Config{
		Bucket:         loc.Host,
		Region:         region,
		Endpoint:       endpoint,
		ForcePathStyle: loc.GetParamBool("path_style", endpoint != ""),
	}

	if loc.Auth != "" {
		user, pass, _ := strings.Cut(loc.Auth, ":")
		accessKey, err := url.PathUnescape(user)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid S3 access key: %w", interfaces.ErrConfig, err)
		}
		secretKey, err := url.PathUnescape(pass)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid S3 secret key: %w", interfaces.ErrConfig, err)
		}
		cfg.AccessKey, cfg.SecretKey = accessKey, secretKey
	}

	return NewS3Store(cfg, log)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
