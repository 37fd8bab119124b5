// Copyright 2017 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package config defines the configuration of a subround runtime.
// Configurations are YAML documents, for example:
//
//	subrounds: 8
//	backends: local,4
//	parallelism: 2
//	loglevel: debug
//	logformat: json
//	retry:
//	  maxretries: 3
//	  initial: 100ms
//	  max: 5s
//	  factor: 1.5
//	rate:
//	  limit: 100
//	  burst: 10
//
// The backends key names a backend provider and its argument,
// separated by a comma. Providers are registered with Register; the
// "local" provider is always available.
package config

import (
	"fmt"
	"io/ioutil"
	golog "log"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/grailbio/base/retry"
	"github.com/grailbio/subround"
	"github.com/grailbio/subround/errors"
	"github.com/grailbio/subround/log"
	"github.com/grailbio/subround/pool"
	"github.com/grailbio/subround/runtime"
	"github.com/grailbio/subround/sched"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/time/rate"
	yaml "gopkg.in/yaml.v2"
)

// DefaultBackends is the backend provider used when none is
// configured.
const DefaultBackends = "local,4"

// Retry configures the retrying of transient backend failures.
type Retry struct {
	// MaxRetries is the maximum number of retries of an invocation.
	MaxRetries int `yaml:"maxretries"`
	// Initial and Max are the initial and maximum backoff durations.
	Initial string `yaml:"initial"`
	Max     string `yaml:"max"`
	// Factor is the backoff factor.
	Factor float64 `yaml:"factor,omitempty"`
}

// Rate configures the rate at which invocations are admitted, across
// all backends.
type Rate struct {
	// Limit is the number of invocations per second.
	Limit float64 `yaml:"limit"`
	// Burst is the maximum burst size.
	Burst int `yaml:"burst"`
}

// Config is a subround runtime configuration.
type Config struct {
	// Subrounds is the number of subrounds into which arguments are
	// partitioned. Zero means one per backend.
	Subrounds int `yaml:"subrounds,omitempty"`
	// Backends is the backend provider, as "kind,arg".
	Backends string `yaml:"backends,omitempty"`
	// Parallelism bounds the number of invocations evaluated
	// concurrently by in-process backends. Zero means unbounded.
	Parallelism int `yaml:"parallelism,omitempty"`
	// LogLevel is the log level: "off", "error", "info", or "debug".
	LogLevel string `yaml:"loglevel,omitempty"`
	// LogFormat is the log format: "text" (the default) or "json".
	LogFormat string `yaml:"logformat,omitempty"`
	// Retry, if present, retries transient backend failures.
	Retry *Retry `yaml:"retry,omitempty"`
	// Rate, if present, throttles invocations.
	Rate *Rate `yaml:"rate,omitempty"`
}

// Parse parses and validates a configuration from the YAML-formatted
// bytes b. Unknown keys are rejected.
func Parse(b []byte) (*Config, error) {
	cfg := new(Config)
	if err := yaml.UnmarshalStrict(b, cfg); err != nil {
		return nil, errors.E("config.Parse", errors.Configuration, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ParseFile reads and then parses the configuration from the
// provided filename.
func ParseFile(filename string) (*Config, error) {
	b, err := ioutil.ReadFile(filename)
	if err != nil {
		return nil, errors.E("config.ParseFile", filename, err)
	}
	cfg, err := Parse(b)
	if err != nil {
		return nil, errors.E("config.ParseFile", filename, err)
	}
	return cfg, nil
}

// Marshal renders the configuration as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// Validate checks that the configuration is well-formed.
func (c *Config) Validate() error {
	if c.Subrounds < 0 {
		return errors.E("config", "subrounds", errors.Configuration, errors.Errorf("negative subround count %d", c.Subrounds))
	}
	if c.Parallelism < 0 {
		return errors.E("config", "parallelism", errors.Configuration, errors.Errorf("negative parallelism %d", c.Parallelism))
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return errors.E("config", "loglevel", errors.Configuration, err)
	}
	switch c.LogFormat {
	case "", "text", "json":
	default:
		return errors.E("config", "logformat", errors.Configuration, errors.Errorf("unknown log format %q", c.LogFormat))
	}
	kind, _ := peel(c.backends(), ",")
	if _, ok := Lookup(kind); !ok {
		return errors.E("config", "backends", errors.Configuration, errors.Errorf("unknown backend provider %q", kind))
	}
	if _, err := c.RetryPolicy(); err != nil {
		return err
	}
	if c.Rate != nil && (c.Rate.Limit <= 0 || c.Rate.Burst <= 0) {
		return errors.E("config", "rate", errors.Configuration,
			errors.Errorf("rate limit %v and burst %d must be positive", c.Rate.Limit, c.Rate.Burst))
	}
	return nil
}

func (c *Config) backends() string {
	if c.Backends == "" {
		return DefaultBackends
	}
	return c.Backends
}

// Logger returns a logger to standard error at the configured level.
// JSON-formatted logs are written through a zap production logger.
func (c *Config) Logger() (*log.Logger, error) {
	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, errors.E("config", "loglevel", errors.Configuration, err)
	}
	if c.LogFormat != "json" {
		return log.New(golog.New(os.Stderr, "", golog.LstdFlags), level), nil
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	zc.Sampling = nil
	z, err := zc.Build()
	if err != nil {
		return nil, errors.E("config", "logformat", errors.Configuration, err)
	}
	return log.New(log.Zap(z), level), nil
}

// RetryPolicy returns the configured retry policy, or nil if
// retries are not configured.
func (c *Config) RetryPolicy() (retry.Policy, error) {
	if c.Retry == nil {
		return nil, nil
	}
	initial, err := time.ParseDuration(c.Retry.Initial)
	if err != nil {
		return nil, errors.E("config", "retry.initial", errors.Configuration, err)
	}
	max, err := time.ParseDuration(c.Retry.Max)
	if err != nil {
		return nil, errors.E("config", "retry.max", errors.Configuration, err)
	}
	factor := c.Retry.Factor
	if factor == 0 {
		factor = 1.5
	}
	switch {
	case c.Retry.MaxRetries < 0:
		return nil, errors.E("config", "retry.maxretries", errors.Configuration,
			errors.Errorf("negative retry count %d", c.Retry.MaxRetries))
	case initial <= 0 || max < initial:
		return nil, errors.E("config", "retry", errors.Configuration,
			errors.Errorf("invalid backoff [%s, %s]", initial, max))
	case factor < 1:
		return nil, errors.E("config", "retry.factor", errors.Configuration,
			errors.Errorf("backoff factor %v is less than 1", factor))
	}
	return retry.MaxRetries(retry.Jitter(retry.Backoff(initial, max, factor), 0.25), c.Retry.MaxRetries), nil
}

// Limiter returns the configured rate limiter, or nil if invocations
// are not throttled.
func (c *Config) Limiter() *rate.Limiter {
	if c.Rate == nil {
		return nil
	}
	return rate.NewLimiter(rate.Limit(c.Rate.Limit), c.Rate.Burst)
}

// Pool provisions the configured backends, decorated with the
// configured throttling and retry policy.
func (c *Config) Pool(log *log.Logger) ([]subround.Backend, error) {
	kind, arg := peel(c.backends(), ",")
	p, ok := Lookup(kind)
	if !ok {
		return nil, errors.E("config", "backends", errors.Configuration, errors.Errorf("unknown backend provider %q", kind))
	}
	backends, err := p.Configure(c, arg, log)
	if err != nil {
		return nil, errors.E("config", "backends", kind, errors.Configuration, err)
	}
	policy, err := c.RetryPolicy()
	if err != nil {
		return nil, err
	}
	lim := c.Limiter()
	for i, b := range backends {
		if lim != nil {
			b = pool.Throttle(b, lim)
		}
		if policy != nil {
			b = pool.Retry(b, policy, log)
		}
		backends[i] = b
	}
	return backends, nil
}

// Context returns a runtime context over the configured pool. The
// context's scheduler stats are published as a go expvar.
func (c *Config) Context(log *log.Logger) (*runtime.Context, error) {
	backends, err := c.Pool(log)
	if err != nil {
		return nil, err
	}
	stats := sched.NewStats()
	stats.Publish()
	return &runtime.Context{
		Backends:  backends,
		Subrounds: c.Subrounds,
		Log:       log,
		Stats:     stats,
	}, nil
}

// A Provider provisions backends. Providers must be registered via
// the package's Register function.
type Provider struct {
	Configure func(cfg *Config, arg string, log *log.Logger) ([]subround.Backend, error)
	Kind, Arg string
	Usage     string
}

var (
	providers = make(map[string]Provider)
	mu        sync.Mutex
)

// Register registers the backend provider kind. The arg and usage
// strings should describe the provider's argument.
func Register(kind, arg, usage string, configure func(*Config, string, *log.Logger) ([]subround.Backend, error)) {
	mu.Lock()
	defer mu.Unlock()
	if _, ok := providers[kind]; ok {
		panic(fmt.Sprintf("backend provider %s already registered", kind))
	}
	providers[kind] = Provider{
		Configure: configure,
		Kind:      kind,
		Arg:       arg,
		Usage:     usage,
	}
}

// Lookup returns the backend provider of the given kind.
func Lookup(kind string) (Provider, bool) {
	mu.Lock()
	defer mu.Unlock()
	p, ok := providers[kind]
	return p, ok
}

// Usage contains usage information for a provider.
type Usage struct {
	Kind, Arg, Usage string
}

// Help returns the usage of each registered provider, ordered by
// kind.
func Help() []Usage {
	mu.Lock()
	defer mu.Unlock()
	usages := make([]Usage, 0, len(providers))
	for kind, p := range providers {
		usages = append(usages, Usage{Kind: kind, Arg: p.Arg, Usage: p.Usage})
	}
	sort.Slice(usages, func(i, j int) bool { return usages[i].Kind < usages[j].Kind })
	return usages
}

func peel(s, sep string) (head, tail string) {
	switch parts := strings.SplitN(s, sep, 2); len(parts) {
	case 1:
		return parts[0], ""
	case 2:
		return parts[0], parts[1]
	default:
		panic("bug")
	}
}
