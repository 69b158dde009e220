package config

import "time"

// Database connection pool settings
const (
	DBMaxOpenConns    = 25
	DBMaxIdleConns    = 5
	DBConnMaxLifetime = 5 * time.Minute
)

// HTTP server timeouts
const (
	ServerRequestTimeout  = 60 * time.Second
	ServerReadTimeout     = 15 * time.Second
	ServerIdleTimeout     = 120 * time.Second
	ServerShutdownTimeout = 30 * time.Second
)

// Database ping timeout for health checks
const DBPingTimeout = 5 * time.Second

// Background job intervals
const CleanupJobInterval = 5 * time.Minute

// Recent-session rows older than this are pruned by the cleanup job.
const RecentSessionRetention = 90 * 24 * time.Hour

// Recent-sessions list limits
const (
	DefaultRecentSessionLimit = 10
	MaxRecentSessionLimit     = 50
)

// Session code generation gives up after this many collisions.
const SessionCodeMaxAttempts = 100

// Largest signaling frame the relay will read from a socket.
const MaxSignalingFrameBytes = 64 * 1024

// JWT lifetime for login tokens.
const AuthTokenTTL = 24 * time.Hour
