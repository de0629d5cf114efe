package httpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"runtime/debug"
	"time"

	"github.com/flashbots/go-utils/httplogger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"github.com/ruteri/kvgateway/common"
	"github.com/ruteri/kvgateway/metrics"
	"go.uber.org/atomic"
)

// compressibleTypes are the response types compressed for clients that accept it.
var compressibleTypes = []string{
	"application/octet-stream",
	"application/json",
	"text/plain",
}

type HTTPServerConfig struct {
	ListenAddr  string
	MetricsAddr string
	EnablePprof bool
	Log         *slog.Logger

	DrainDuration            time.Duration
	GracefulShutdownDuration time.Duration
	ReadHeaderTimeout        time.Duration
	// ReadTimeout bounds reading the whole request including the body. Zero
	// leaves uploads of large values unbounded.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Exit terminates the process after a handler panic. Defaults to os.Exit.
	Exit func(code int)
}

type Server struct {
	cfg     *HTTPServerConfig
	isReady atomic.Bool
	log     *slog.Logger
	exit    func(code int)

	srv        *http.Server
	metricsSrv *metrics.MetricsServer
	handler    *Handler
}

func New(cfg *HTTPServerConfig, handler *Handler) (srv *Server, err error) {
	metricsSrv, err := metrics.New(common.PackageName, cfg.MetricsAddr)
	if err != nil {
		return nil, err
	}

	exit := cfg.Exit
	if exit == nil {
		exit = os.Exit
	}

	srv = &Server{
		cfg:        cfg,
		log:        cfg.Log,
		exit:       exit,
		srv:        nil,
		metricsSrv: metricsSrv,
		handler:    handler.WithMetrics(metricsSrv.Metrics),
	}
	srv.isReady.Store(true)

	srv.srv = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.getRouter(),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
	}

	return srv, nil
}

func (srv *Server) getRouter() http.Handler {
	mux := chi.NewRouter()

	mux.Use(
		srv.cors,
		srv.httpLogger,
		middleware.Compress(5, compressibleTypes...),
		srv.exitOnPanic,
	)

	mux.Get("/keys/{key}", srv.handler.HandleGet)
	mux.Post("/keys/{key}", srv.handler.HandleSet)
	mux.Delete("/keys/{key}", srv.handler.HandleDelete)
	mux.Post("/flush", srv.handler.HandleFlush)

	// Health and diagnostic endpoints
	mux.Get("/livez", srv.handleLivenessCheck)
	mux.Get("/readyz", srv.handleReadinessCheck)
	mux.Get("/drain", srv.handleDrain)
	mux.Get("/undrain", srv.handleUndrain)

	if srv.cfg.EnablePprof {
		srv.log.Info("pprof API enabled")
		mux.Mount("/debug", middleware.Profiler())
	}
	return mux
}

func (srv *Server) cors(next http.Handler) http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodPatch},
		AllowedHeaders: []string{"*"},
	}).Handler(next)
}

func (srv *Server) httpLogger(next http.Handler) http.Handler {
	return httplogger.LoggingMiddlewareSlog(srv.log, next)
}

// exitOnPanic terminates the process when a handler panics. It sits inside the
// request logger, which would otherwise recover and keep serving.
func (srv *Server) exitOnPanic(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}

			srv.log.Error("Handler panicked, exiting",
				"err", fmt.Sprint(rec),
				"method", r.Method,
				"path", r.URL.EscapedPath(),
				"stack", string(debug.Stack()),
			)
			srv.exit(1)
			w.WriteHeader(http.StatusInternalServerError)
		}()
		next.ServeHTTP(w, r)
	})
}

func (srv *Server) handleLivenessCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"alive"}`))
}

func (srv *Server) handleReadinessCheck(w http.ResponseWriter, r *http.Request) {
	if !srv.isReady.Load() {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"status":"not ready"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ready"}`))
}

// handleDrain marks the server not ready and holds the response for
// DrainDuration so load balancers observe the change before it returns.
func (srv *Server) handleDrain(w http.ResponseWriter, r *http.Request) {
	if !srv.isReady.Swap(false) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"already draining"}`))
		return
	}

	srv.log.Info("Server marked as not ready")

	select {
	case <-time.After(srv.cfg.DrainDuration):
		srv.log.Info("Drain period completed")
	case <-r.Context().Done():
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"draining"}`))
}

func (srv *Server) handleUndrain(w http.ResponseWriter, r *http.Request) {
	if srv.isReady.Swap(true) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"already ready"}`))
		return
	}

	srv.log.Info("Server marked as ready")

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ready"}`))
}

// RunInBackground binds the API and metrics listeners and serves them in the
// background. A listener that cannot be bound is returned as an error and
// nothing is served.
func (srv *Server) RunInBackground() error {
	ln, err := net.Listen("tcp", srv.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", srv.cfg.ListenAddr, err)
	}

	var metricsLn net.Listener
	if srv.cfg.MetricsAddr != "" {
		metricsLn, err = net.Listen("tcp", srv.cfg.MetricsAddr)
		if err != nil {
			ln.Close()
			return fmt.Errorf("failed to listen on %s: %w", srv.cfg.MetricsAddr, err)
		}
	}

	// metrics
	if metricsLn != nil {
		go func() {
			srv.log.With("metricsAddress", metricsLn.Addr().String()).Info("Starting metrics server")
			if err := srv.metricsSrv.Serve(metricsLn); err != nil {
				srv.log.Error("HTTP server failed", "err", err)
			}
		}()
	}

	// api
	go func() {
		srv.log.Info("Starting HTTP server", "listenAddress", ln.Addr().String())
		if err := srv.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srv.log.Error("HTTP server failed", "err", err)
		}
	}()
	return nil
}

func (srv *Server) Shutdown() {
	// api
	ctx, cancel := context.WithTimeout(context.Background(), srv.cfg.GracefulShutdownDuration)
	defer cancel()
	if err := srv.srv.Shutdown(ctx); err != nil {
		srv.log.Error("Graceful HTTP server shutdown failed", "err", err)
	} else {
		srv.log.Info("HTTP server gracefully stopped")
	}

	// metrics
	if len(srv.cfg.MetricsAddr) != 0 {
		ctx, cancel := context.WithTimeout(context.Background(), srv.cfg.GracefulShutdownDuration)
		defer cancel()

		if err := srv.metricsSrv.Shutdown(ctx); err != nil {
			srv.log.Error("Graceful metrics server shutdown failed", "err", err)
		} else {
			srv.log.Info("Metrics server gracefully stopped")
		}
	}
}
