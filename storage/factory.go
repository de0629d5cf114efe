package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/dustin/go-humanize"
	"github.com/ruteri/kvgateway/interfaces"
	"github.com/ruteri/kvgateway/objstore"
	"github.com/syndtr/goleveldb/leveldb/opt"
)

// KVStoreFactory creates the gateway's KVStore from a connection descriptor.
type KVStoreFactory struct {
	log        *slog.Logger
	httpClient *http.Client
}

// NewKVStoreFactory creates a new factory instance.
func NewKVStoreFactory(logger *slog.Logger) *KVStoreFactory {
	return &KVStoreFactory{
		log: logger,
	}
}

// WithHTTPClient sets the client remote stores use for outbound requests.
func (sf *KVStoreFactory) WithHTTPClient(client *http.Client) *KVStoreFactory {
	sf.httpClient = client
	return sf
}

// KVStoreFromString parses a connection string and creates its KVStore.
func (sf *KVStoreFactory) KVStoreFromString(ctx context.Context, raw string) (interfaces.KVStore, error) {
	loc, err := interfaces.ParseStoreLocation(raw)
	if err != nil {
		return nil, err
	}
	return sf.KVStoreFor(ctx, loc)
}

// KVStoreFor creates a KVStore for a location.
//
// Supported schemes:
//   - file:// - embedded engine on the local filesystem
//   - s3://   - embedded engine on S3 or compatible object storage
//   - http://, https:// - forwarding to another gateway
//
// Any other scheme fails with interfaces.ErrConfig.
func (sf *KVStoreFactory) KVStoreFor(ctx context.Context, loc interfaces.StoreLocation) (interfaces.KVStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch loc.Scheme {
	case "file", "s3":
		return sf.createEmbeddedStore(loc)
	case "http", "https":
		return sf.createRemoteStore(loc)
	default:
		return nil, fmt.Errorf("%w: invalid store scheme: %q", interfaces.ErrConfig, loc.Scheme)
	}
}

// createEmbeddedStore opens the engine inside the selected object storage target.
// URI format: file:///path/?sync=true or s3://bucket/prefix/?flush_interval=1s&write_buffer=16MiB
func (sf *KVStoreFactory) createEmbeddedStore(loc interfaces.StoreLocation) (interfaces.KVStore, error) {
	sf.log.Debug("Creating embedded store", slog.String("uri", loc.String()))

	opts, err := embeddedOptions(loc)
	if err != nil {
		return nil, err
	}

	root, err := objstore.EnginePath(loc)
	if err != nil {
		return nil, err
	}

	target, err := objstore.ObjectStoreFor(loc, sf.log)
	if err != nil {
		if !errors.Is(err, interfaces.ErrConfig) {
			err = fmt.Errorf("%w: %w", interfaces.ErrConfig, err)
		}
		return nil, err
	}

	return NewEmbeddedStore(objstore.Prefixed(target, root), opts, sf.log)
}

// createRemoteStore creates a store forwarding to another gateway.
// URI format: http://host:port/[base/]?timeout=5s&strict_status=true
func (sf *KVStoreFactory) createRemoteStore(loc interfaces.StoreLocation) (interfaces.KVStore, error) {
	sf.log.Debug("Creating remote store", slog.String("uri", loc.String()))

	timeout, err := loc.GetParamDuration("timeout", 0)
	if err != nil {
		return nil, err
	}

	return NewRemoteStore(loc.BaseURL(), RemoteOptions{
		Client:       sf.httpClient,
		Timeout:      timeout,
		StrictStatus: loc.GetParamBool("strict_status", false),
	}, sf.log)
}

func embeddedOptions(loc interfaces.StoreLocation) (EmbeddedOptions, error) {
	flushInterval, err := loc.GetParamDuration("flush_interval", DefaultFlushInterval)
	if err != nil {
		return EmbeddedOptions{}, err
	}

	opts := EmbeddedOptions{
		Sync:          loc.GetParamBool("sync", false),
		FlushInterval: flushInterval,
	}

	if wb := loc.GetParam("write_buffer"); wb != "" {
		size, err := humanize.ParseBytes(wb)
		if err != nil {
			return EmbeddedOptions{}, fmt.Errorf("%w: invalid write_buffer %q: %w", interfaces.ErrConfig, wb, err)
		}
		opts.WriteBuffer = int(size)
	}

	switch c := loc.GetParam("compression"); c {
	case "", "snappy":
		opts.Compression = opt.SnappyCompression
	case "none":
		opts.Compression = opt.NoCompression
	default:
		return EmbeddedOptions{}, fmt.Errorf("%w: invalid compression %q", interfaces.ErrConfig, c)
	}

	return opts, nil
}
