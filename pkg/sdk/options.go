package nqdecode

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Option configures the Client.
type Option interface {
	apply(*clientConfig)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*clientConfig)

func (f optionFunc) apply(c *clientConfig) { f(c) }

const (
	driverNone   = ""
	driverValkey = "valkey"
	driverRedis  = "redis"
	driverBolt   = "bolt"
)

type clientConfig struct {
	driver   string
	addrs    []string
	password string
	path     string
	ttl      time.Duration

	nBestSize           int
	maxAnswerLength     int
	maxLongAnswerLength int
	longNTop            int
	shortNTop           int
	workers             int
	allCandidates       bool
	threshold           *float64

	logger     *slog.Logger
	metricsReg prometheus.Registerer
}

// WithValkey stores raw results in a Valkey instance.
func WithValkey(addr, password string) Option {
	return optionFunc(func(c *clientConfig) {
		c.driver = driverValkey
		c.addrs = []string{addr}
		c.password = password
	})
}

// WithRedis stores raw results in a Redis instance.
func WithRedis(addr, password string) Option {
	return optionFunc(func(c *clientConfig) {
		c.driver = driverRedis
		c.addrs = []string{addr}
		c.password = password
	})
}

// WithBolt stores raw results in a local bbolt file, created if missing.
func WithBolt(path string) Option {
	return optionFunc(func(c *clientConfig) {
		c.driver = driverBolt
		c.path = path
	})
}

// WithResultTTL expires stored raw results after ttl. Zero keeps them forever.
func WithResultTTL(ttl time.Duration) Option {
	return optionFunc(func(c *clientConfig) {
		c.ttl = ttl
	})
}

// WithNBestSize sets how many top start and end logits are paired per window.
// Default: 20.
func WithNBestSize(n int) Option {
	return optionFunc(func(c *clientConfig) {
		c.nBestSize = n
	})
}

// WithMaxAnswerLength caps the short answer span length in window tokens.
// Default: 30.
func WithMaxAnswerLength(n int) Option {
	return optionFunc(func(c *clientConfig) {
		c.maxAnswerLength = n
	})
}

// WithMaxLongAnswerLength caps span length for top-k results. Default: 512.
func WithMaxLongAnswerLength(n int) Option {
	return optionFunc(func(c *clientConfig) {
		c.maxLongAnswerLength = n
	})
}

// WithTopK sets the start and end beam widths read from top-k results.
// Defaults: 5 and 5.
func WithTopK(longNTop, shortNTop int) Option {
	return optionFunc(func(c *clientConfig) {
		c.longNTop = longNTop
		c.shortNTop = shortNTop
	})
}

// WithWorkers bounds concurrent document decoding. Default: GOMAXPROCS.
func WithWorkers(n int) Option {
	return optionFunc(func(c *clientConfig) {
		c.workers = n
	})
}

// WithAllCandidates makes nested candidates eligible as long answers.
// By default only top-level candidates are.
func WithAllCandidates() Option {
	return optionFunc(func(c *clientConfig) {
		c.allCandidates = true
	})
}

// WithThreshold sets the submission score threshold. Default: 1.5.
func WithThreshold(t float64) Option {
	return optionFunc(func(c *clientConfig) {
		c.threshold = &t
	})
}

// WithLogger enables structured logging for SDK operations.
// Pass nil to disable (default). Uses standard library slog.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(c *clientConfig) {
		c.logger = l
	})
}

// WithPrometheus registers SDK metrics (operation counts and durations)
// on the given registerer. Pass nil to disable (default).
func WithPrometheus(reg prometheus.Registerer) Option {
	return optionFunc(func(c *clientConfig) {
		c.metricsReg = reg
	})
}
