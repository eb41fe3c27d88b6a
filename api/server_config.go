package api

import (
	"crypto/tls"
	"log/slog"
	"time"
)

// HTTPServerConfig configures the development broker's HTTP server.
type HTTPServerConfig struct {
	ListenAddr string

	// Served over TLS when both files are set.
	TLSCertFile string
	TLSKeyFile  string

	// In-memory TLS (for example a self-signed dev certificate).
	// Wins over TLSCertFile/TLSKeyFile.
	TLSConfig *tls.Config

	// Mounts /debug/pprof on the broker router.
	EnablePprof bool

	Log *slog.Logger

	// How long /readyz reports not-ready before the listener is closed, so
	// agents stop being routed to a broker that is going away.
	DrainDuration time.Duration

	// Upper bound for in-flight get_secret exchanges to finish on shutdown.
	GracefulShutdownDuration time.Duration

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}
