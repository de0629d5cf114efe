package interfaces

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStoreLocation(t *testing.T) {
	relAbs, err := filepath.Abs("data/kv")
	require.NoError(t, err)

	tests := []struct {
		name       string
		raw        string
		wantScheme string
		wantHost   string
		wantPath   string
		wantErr    bool
	}{
		{name: "default", raw: "", wantScheme: "file", wantPath: DefaultStoreLocation},
		{name: "file url", raw: "file:///tmp/t1", wantScheme: "file", wantPath: "/tmp/t1"},
		{name: "bare absolute path", raw: "/var/lib/kv", wantScheme: "file", wantPath: "/var/lib/kv"},
		{name: "bare relative path", raw: "data/kv", wantScheme: "file", wantPath: filepath.ToSlash(relAbs)},
		{name: "s3 with prefix", raw: "s3://bucket/prefix/db?region=eu-west-1", wantScheme: "s3", wantHost: "bucket", wantPath: "/prefix/db"},
		{name: "http", raw: "http://backend:7777", wantScheme: "http", wantHost: "backend:7777"},
		{name: "https upper case scheme", raw: "HTTPS://backend/", wantScheme: "https", wantHost: "backend", wantPath: "/"},
		{name: "unsupported scheme", raw: "ipfs://host/", wantErr: true},
		{name: "s3 without bucket", raw: "s3:///prefix", wantErr: true},
		{name: "http without host", raw: "http:///keys", wantErr: true},
		{name: "malformed", raw: "http://[::1", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loc, err := ParseStoreLocation(tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrConfig)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantScheme, loc.Scheme)
			assert.Equal(t, tt.wantHost, loc.Host)
			assert.Equal(t, tt.wantPath, loc.Path)
		})
	}
}

func TestStoreLocation_Kinds(t *testing.T) {
	for raw, embedded := range map[string]bool{
		"file:///tmp/a":    true,
		"s3://bucket/a":    true,
		"http://host:1/":   false,
		"https://host:1/x": false,
	} {
		loc, err := ParseStoreLocation(raw)
		require.NoError(t, err)
		assert.Equal(t, embedded, loc.IsEmbedded(), raw)
		assert.Equal(t, !embedded, loc.IsRemote(), raw)
	}
}

func TestStoreLocation_Params(t *testing.T) {
	loc, err := ParseStoreLocation("s3://bucket/db?sync=true&flush_interval=250ms&zero=0&bad=soon")
	require.NoError(t, err)

	assert.True(t, loc.GetParamBool("sync", false))
	assert.True(t, loc.GetParamBool("missing", true))
	assert.False(t, loc.GetParamBool("zero", true))

	d, err := loc.GetParamDuration("flush_interval", time.Second)
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, d)

	d, err = loc.GetParamDuration("zero", time.Second)
	require.NoError(t, err)
	assert.Zero(t, d)

	d, err = loc.GetParamDuration("missing", time.Second)
	require.NoError(t, err)
	assert.Equal(t, time.Second, d)

	_, err = loc.GetParamDuration("bad", time.Second)
	assert.ErrorIs(t, err, ErrConfig)
}

func TestStoreLocation_BaseURL(t *testing.T) {
	loc, err := ParseStoreLocation("http://backend:7777/gw?timeout=5s")
	require.NoError(t, err)
	assert.Equal(t, "http://backend:7777/gw", loc.BaseURL().String())
}
