// Package config defines the process-level configuration surface for the
// SQL-backed hypergraph store, parsed with jessevdk/go-flags the way the
// teacher's command-line tools parse theirs.
package config

import (
	flags "github.com/jessevdk/go-flags"
)

// StoreConfig groups connection and concurrency settings for sqlstore.
type StoreConfig struct {
	URI string `long:"uri" env:"ATOMSPACE_URI" default:"postgres:///atomspace" description:"Connection URI; a postgres://, sqlite://, or odbc:// scheme selects the driver"`

	PoolSize int `long:"pool-size" env:"ATOMSPACE_POOL_SIZE" default:"0" description:"Connection pool size; 0 selects max(NumCPU, 8) + worker-count"`

	WorkerCount int `long:"worker-count" env:"ATOMSPACE_WORKER_COUNT" default:"8" description:"Number of write-back queue workers"`

	IDBCacheSize int `long:"idb-cache-size" env:"ATOMSPACE_IDB_CACHE_SIZE" default:"1048576" description:"Maximum resident handle<->EID pairs held by the identifier buffer"`
}

// Config is the top-level configuration struct handed to a go-flags
// parser, grouped the way the teacher's per-component configs are grouped
// under a single root struct.
type Config struct {
	Store StoreConfig `group:"Store" namespace:"store" env-namespace:"STORE"`

	MetricsAddr string `long:"metrics-addr" env:"ATOMSPACE_METRICS_ADDR" default:":2112" description:"Address to serve /metrics on, empty to disable"`
}

// NewParser returns a go-flags parser over cfg, configured the way the
// admin CLI and any future server entry point both expect.
func NewParser(cfg *Config) *flags.Parser {
	return flags.NewParser(cfg, flags.Default)
}
