package common

import (
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"runtime/debug"
	"strconv"

	"github.com/dustin/go-humanize"
)

const (
	WorkerThreadsEnv   = "KVGATEWAY_WORKER_THREADS"
	BlockingThreadsEnv = "KVGATEWAY_BLOCKING_THREADS"
	ThreadStackSizeEnv = "KVGATEWAY_THREAD_STACK_SIZE"
)

// RuntimeOpts holds the runtime tuning read from the environment. Zero fields
// leave the Go runtime defaults in place.
type RuntimeOpts struct {
	WorkerThreads   int
	BlockingThreads int
	StackSize       uint64
}

// RuntimeOptsFromEnv reads the tuning knobs. Unset variables are skipped,
// malformed ones are reported.
func RuntimeOptsFromEnv(getenv func(string) string) (RuntimeOpts, error) {
	if getenv == nil {
		getenv = os.Getenv
	}

	var opts RuntimeOpts
	if v := getenv(WorkerThreadsEnv); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return opts, fmt.Errorf("invalid %s %q", WorkerThreadsEnv, v)
		}
		opts.WorkerThreads = n
	}
	if v := getenv(BlockingThreadsEnv); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return opts, fmt.Errorf("invalid %s %q", BlockingThreadsEnv, v)
		}
		opts.BlockingThreads = n
	}
	if v := getenv(ThreadStackSizeEnv); v != "" {
		n, err := humanize.ParseBytes(v)
		if err != nil || n == 0 {
			return opts, fmt.Errorf("invalid %s %q", ThreadStackSizeEnv, v)
		}
		opts.StackSize = n
	}
	return opts, nil
}

// TuneRuntime applies opts to the Go runtime.
func TuneRuntime(opts RuntimeOpts, log *slog.Logger) {
	if opts.WorkerThreads > 0 {
		runtime.GOMAXPROCS(opts.WorkerThreads)
		log.Info("Tuned worker threads", "gomaxprocs", opts.WorkerThreads)
	}
	if opts.BlockingThreads > 0 {
		// the runtime needs headroom above GOMAXPROCS for its own threads
		maxThreads := opts.BlockingThreads + runtime.GOMAXPROCS(0)
		debug.SetMaxThreads(maxThreads)
		log.Info("Tuned thread limit", "maxThreads", maxThreads)
	}
	if opts.StackSize > 0 {
		debug.SetMaxStack(int(opts.StackSize))
		log.Info("Tuned max stack", "size", humanize.IBytes(opts.StackSize))
	}
}
