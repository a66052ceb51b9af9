// Package config provides production-grade configuration management for
// loadspiker-engine. It supports JSON-based configuration loading with safe
// defaults optimized for high concurrency.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Config holds all tunable parameters for the load-generator engine. The
// struct is designed to be loaded once at startup and then shared across
// goroutines as a read-only value, making it inherently thread-safe after
// initialization. Fields cover worker-pool sizing, HTTP transport tuning,
// browser-fingerprint mode, and proxy rotation.
type Config struct {
	// VirtualUsers controls how many independent virtual-user identities the
	// driver schedules scenario runs across. Keep this <= 2000 for safe
	// operation against a single target.
	VirtualUsers int `json:"virtual_users"`

	// WorkerCount sizes the worker pool (worker.NewPool's workers argument)
	// that executes enqueued request descriptors.
	WorkerCount int `json:"worker_count"`

	// QueueCapacity is a size setting for the worker pool's bounded ring
	// buffer. worker.NewPool takes no capacity argument: it sizes the buffer
	// at 2*maxConnections, and nothing in this module passes QueueCapacity
	// to it.
	QueueCapacity int `json:"queue_capacity"`

	// DefaultTimeoutMS is the end-to-end timeout, in milliseconds, applied
	// to a request descriptor that does not specify its own TimeoutMS.
	DefaultTimeoutMS int `json:"default_timeout_ms"`

	// TargetURL is the base URL the engine will interact with.
	TargetURL string `json:"target_url"`

	// ProxyFile is the path to a newline-delimited file containing proxy
	// addresses (host:port or scheme://host:port), loaded by
	// proxy.ProxyManager.LoadProxies. Leave empty to run without proxies.
	ProxyFile string `json:"proxy_file"`

	// BrowserProfile selects a browser.Profile by name ("chrome", "firefox",
	// or "" for no fingerprinting) applied to the HTTP transport via
	// client.NewHTTPClientWithProfile.
	BrowserProfile string `json:"browser_profile"`

	// HTTPTimeout is the http.Client-level timeout passed to
	// client.NewHTTPClient/NewHTTPClientWithProfile. time.Duration has no
	// string JSON form: the value is an integer count of nanoseconds (e.g.
	// 30000000000 for 30s); a string such as "30s" fails to decode.
	HTTPTimeout time.Duration `json:"http_timeout"`

	// MaxIdleConns is the total maximum number of idle (keep-alive)
	// connections across all hosts in the HTTP transport pool.
	MaxIdleConns int `json:"max_idle_conns"`

	// MaxIdleConnsPerHost caps idle connections to a single host.
	MaxIdleConnsPerHost int `json:"max_idle_conns_per_host"`

	// MaxConnsPerHost limits the total number of connections (idle +
	// active) to a single host.
	MaxConnsPerHost int `json:"max_conns_per_host"`
}

// LoadConfig reads a JSON file at filename and deserialises it into a Config.
// It returns an error if the file cannot be opened or if the JSON is
// malformed. The returned *Config is ready to use; zero-value fields retain
// Go's zero values, so callers should validate required fields after
// loading.
func LoadConfig(filename string) (*Config, error) {
	f, err := os.Open(filename) // #nosec G304 – filename is caller-provided config path
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", filename, err)
	}
	defer f.Close()

	var cfg Config
	dec := json.NewDecoder(f)
	dec.DisallowUnknownFields() // catch typos in config files early
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode %q: %w", filename, err)
	}
	return &cfg, nil
}

// DefaultConfig returns a *Config pre-filled with production-sensible
// defaults. The values are tuned for high-concurrency workloads (~500
// virtual users) while staying within typical OS file-descriptor limits.
// Callers are free to mutate the returned struct before passing it to other
// components; each call returns a fresh independent copy.
func DefaultConfig() *Config {
	return &Config{
		VirtualUsers:        500,
		WorkerCount:         200,
		QueueCapacity:       10000,
		DefaultTimeoutMS:    30000,
		TargetURL:           "",
		ProxyFile:           "",
		BrowserProfile:      "",
		HTTPTimeout:         30 * time.Second,
		MaxIdleConns:        500,
		MaxIdleConnsPerHost: 100,
		MaxConnsPerHost:     200,
	}
}
