// Package config loads process configuration from the environment,
// following the plain envOr() pattern the teacher uses in cmd/api and
// cmd/chat — no flag/cobra/viper layer, since CLI argument parsing is an
// explicit non-goal of this system (spec.md §1).
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds every environment-sourced setting for the memory daemon and
// its clients (spec.md §6 "Environment inputs").
type Config struct {
	// EmbeddingEndpoint is the base URL of the external HTTP service
	// producing L2-normalized vectors of dimension Dimension; the Ollama
	// client appends /api/embeddings to it.
	EmbeddingEndpoint string
	Dimension         int

	DataDir         string
	CacheDir         string
	SocketPath      string
	PIDFilePath     string
	AutoStart       bool
	Verbose         bool

	// AccessWindow bounds the AccessRecord timestamp deque (spec.md §3).
	AccessWindow time.Duration
	// HeatDecayRate is the per-hour decay rate of the heat score's recency
	// term, exp(-rate * hours since last access).
	HeatDecayRate float64

	// NATSURL, if set, enables the optional activity-bus fan-out backend.
	NATSURL string

	// Neo4jURL/User/Pass configure optional provenance persistence.
	Neo4jURL  string
	Neo4jUser string
	Neo4jPass string

	// HealthAddr supplies the port of the Prometheus-style /metrics HTTP
	// page; only its port is used, and the page listens on all interfaces.
	HealthAddr string
	// GRPCHealthAddr is the loopback address the standard gRPC health
	// checking service binds to (spec.md §4.7 "health.check").
	GRPCHealthAddr string
}

// Load reads Config from the environment, applying spec.md §6's concrete
// defaults.
func Load() Config {
	return Config{
		EmbeddingEndpoint: envOr("MEMORY_EMBEDDING_ENDPOINT", "http://localhost:11434"),
		Dimension:         envOrInt("MEMORY_DIMENSION", 1536),
		DataDir:           envOr("MEMORY_DATA_DIR", ".agentdb"),
		CacheDir:          envOr("MEMORY_CACHE_DIR", ".agentdb/capability-cache"),
		SocketPath:        envOr("MEMORY_SOCKET_PATH", "/tmp/agentdb-memory.sock"),
		PIDFilePath:       envOr("MEMORY_PID_FILE", ".agentdb/memory-server.pid"),
		AutoStart:         envOrBool("MEMORY_AUTO_START", true),
		Verbose:           envOrBool("MEMORY_VERBOSE", false),
		AccessWindow:      envOrDuration("MEMORY_ACCESS_WINDOW", 24*time.Hour),
		HeatDecayRate:     envOrFloat("MEMORY_HEAT_DECAY_RATE", 0.05),
		NATSURL:           envOr("MEMORY_NATS_URL", ""),
		Neo4jURL:          envOr("MEMORY_NEO4J_URL", ""),
		Neo4jUser:         envOr("MEMORY_NEO4J_USER", "neo4j"),
		Neo4jPass:         envOr("MEMORY_NEO4J_PASS", ""),
		HealthAddr:        envOr("MEMORY_HEALTH_ADDR", "127.0.0.1:8091"),
		GRPCHealthAddr:    envOr("MEMORY_GRPC_HEALTH_ADDR", "127.0.0.1:8092"),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envOrBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envOrFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envOrDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
