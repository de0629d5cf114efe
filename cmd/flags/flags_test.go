package flags

import (
	"flag"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

func newContext(t *testing.T, args ...string) *cli.Context {
	t.Helper()
	set := flag.NewFlagSet("test", flag.ContinueOnError)
	for _, f := range append(append([]cli.Flag{StoreURLFlag, ListenAddrFlag, LogServiceFlagFn("test")}, LogFlags...), ServerFlags...) {
		require.NoError(t, f.Apply(set))
	}
	require.NoError(t, set.Parse(args))
	return cli.NewContext(cli.NewApp(), set, nil)
}

func TestConfigureServer(t *testing.T) {
	cCtx := newContext(t, "--listen-addr", "127.0.0.1:9999", "--drain-seconds", "3", "--pprof")
	cfg := ConfigureServer(cCtx, SetupLogger(cCtx))

	assert.Equal(t, "127.0.0.1:9999", cfg.ListenAddr)
	assert.Equal(t, "127.0.0.1:8090", cfg.MetricsAddr)
	assert.Equal(t, 3*time.Second, cfg.DrainDuration)
	assert.True(t, cfg.EnablePprof)

	// request bodies may take arbitrarily long to upload
	assert.Zero(t, cfg.ReadTimeout)
	assert.Positive(t, cfg.ReadHeaderTimeout)
}

func TestDefaults(t *testing.T) {
	cCtx := newContext(t)
	assert.Equal(t, "/tmp/kvstore", cCtx.String(StoreURLFlag.Name))
	assert.Equal(t, "0.0.0.0:7777", cCtx.String(ListenAddrFlag.Name))
	assert.Empty(t, cCtx.String(LogFilterFlag.Name))
}
