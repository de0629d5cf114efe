package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ruteri/kvgateway/interfaces"
)

// RemoteOptions configures a RemoteStore.
type RemoteOptions struct {
	// Client issues the outbound requests. Defaults to a client with Timeout.
	Client *http.Client

	// Timeout bounds each outbound request when Client is nil. Zero means none.
	Timeout time.Duration

	// StrictStatus makes Set and Delete fail on non-2xx responses and Get fail on
	// statuses other than 2xx and 404. Without it the legacy proxy protocol is
	// kept: Set and Delete ignore the status and Get treats every non-404 body
	// as the value.
	StrictStatus bool
}

// RemoteStore implements interfaces.KVStore by forwarding every operation to
// another gateway at <base>/keys/<key>.
//
// Keys and values travel as text: both must be valid UTF-8, otherwise the call
// fails with interfaces.ErrEncoding before any request is sent. Transport
// failures surface as interfaces.ErrRemote and are not retried. Flush is a
// no-op since durability of the remote store is not ours to force.
type RemoteStore struct {
	baseURL      *url.URL
	client       *http.Client
	strictStatus bool
	log          *slog.Logger
}

// NewRemoteStore creates a store forwarding to the gateway at baseURL.
func NewRemoteStore(baseURL *url.URL, opts RemoteOptions, log *slog.Logger) (*RemoteStore, error) {
	if baseURL.Scheme != "http" && baseURL.Scheme != "https" {
		return nil, fmt.Errorf("%w: remote store requires http or https, got %q", interfaces.ErrConfig, baseURL.Scheme)
	}
	if baseURL.Host == "" {
		return nil, fmt.Errorf("%w: remote store requires a host", interfaces.ErrConfig)
	}

	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}

	base := *baseURL
	base.RawQuery = ""
	base.Fragment = ""

	return &RemoteStore{
		baseURL:      &base,
		client:       client,
		strictStatus: opts.StrictStatus,
		log:          log,
	}, nil
}

func (s *RemoteStore) Set(ctx context.Context, key, value []byte) error {
	keyURL, err := s.keyURL(key)
	if err != nil {
		return err
	}
	if !utf8.Valid(value) {
		return fmt.Errorf("%w: value for key %q", interfaces.ErrEncoding, key)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, keyURL, bytes.NewReader(value))
	if err != nil {
		return fmt.Errorf("could not initialize request: %w", err)
	}
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: could not set key: %w", interfaces.ErrRemote, err)
	}
	defer drainAndClose(resp.Body)

	if s.strictStatus && !isSuccess(resp.StatusCode) {
		return statusError(http.MethodPost, resp)
	}
	return nil
}

func (s *RemoteStore) Get(ctx context.Context, key []byte) ([]byte, error) {
	keyURL, err := s.keyURL(key)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, keyURL, nil)
	if err != nil {
		return nil, fmt.Errorf("could not initialize request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: could not get key: %w", interfaces.ErrRemote, err)
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode == http.StatusNotFound {
		return nil, interfaces.ErrKeyNotFound
	}
	if s.strictStatus && !isSuccess(resp.StatusCode) {
		return nil, statusError(http.MethodGet, resp)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: could not read value: %w", interfaces.ErrRemote, err)
	}
	return body, nil
}

func (s *RemoteStore) Delete(ctx context.Context, key []byte) error {
	keyURL, err := s.keyURL(key)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, keyURL, nil)
	if err != nil {
		return fmt.Errorf("could not initialize request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: could not delete key: %w", interfaces.ErrRemote, err)
	}
	defer drainAndClose(resp.Body)

	if s.strictStatus && !isSuccess(resp.StatusCode) && resp.StatusCode != http.StatusNotFound {
		return statusError(http.MethodDelete, resp)
	}
	return nil
}

// Flush always succeeds.
func (s *RemoteStore) Flush(ctx context.Context) error {
	return nil
}

func (s *RemoteStore) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

func (s *RemoteStore) Name() string {
	return fmt.Sprintf("remote-%s", s.baseURL.Host)
}

func (s *RemoteStore) LocationURI() string {
	return s.baseURL.String()
}

// keyURL joins the base URL with /keys/<key>, escaping the key as one path segment.
func (s *RemoteStore) keyURL(key []byte) (string, error) {
	if len(key) == 0 {
		return "", interfaces.ErrInvalidKey
	}
	if !utf8.Valid(key) {
		return "", fmt.Errorf("%w: key %q", interfaces.ErrEncoding, key)
	}

	u := *s.baseURL
	u.Path = strings.TrimSuffix(s.baseURL.Path, "/") + "/keys/" + string(key)
	u.RawPath = strings.TrimSuffix(s.baseURL.EscapedPath(), "/") + "/keys/" + url.PathEscape(string(key))
	return u.String(), nil
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}

func statusError(method string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	return fmt.Errorf("%w: %s returned %d: %s", interfaces.ErrRemote, method, resp.StatusCode, strings.TrimSpace(string(body)))
}

func drainAndClose(body io.ReadCloser) {
	io.Copy(io.Discard, io.LimitReader(body, 64*1024))
	body.Close()
}
