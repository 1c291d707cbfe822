// Package config holds the engine's tunables (spec §6 "Configuration
// options") and their documented defaults.
package config

import (
	"time"

	"github.com/grpcweb-inspector/core/internal/codec"
	"github.com/grpcweb-inspector/core/internal/framing"
)

// Config bundles every option the spec documents, grouped by the
// collaborator that consumes them.
type Config struct {
	ReflectionEnabled bool
	ReflectionTimeout time.Duration

	Codec   codec.Options
	Framing framing.Options
}

// Default returns the spec's documented defaults: reflection enabled with
// a 10s per-origin deadline, lenient (non-strict) UTF-8 decoding, an 0.8
// blind-decode acceptance threshold, and a 64 MiB gzip bomb guard.
func Default() Config {
	return Config{
		ReflectionEnabled: true,
		ReflectionTimeout: 10 * time.Second,
		Codec:             codec.DefaultOptions(),
		Framing:           framing.DefaultOptions(),
	}
}
