package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Run modes.
const (
	ModeBatch  = "batch"  // decode input files once and exit
	ModeServe  = "serve"  // run the HTTP decode service
	ModeSubmit = "submit" // convert an existing predictions file into a submission
	ModeEval   = "eval"   // score a predictions file against the gold annotations
)

// Database drivers.
const (
	DriverNone   = "none"
	DriverRedis  = "redis"
	DriverValkey = "valkey"
	DriverBolt   = "bolt"
)

// Config holds the nqdecode configuration.
type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Auth     AuthConfig     `yaml:"auth"`
	Database DatabaseConfig `yaml:"database"`
	Decode   DecodeConfig   `yaml:"decode"`
	Input    InputConfig    `yaml:"input"`
	Output   OutputConfig   `yaml:"output"`
	Results  ResultsConfig  `yaml:"results"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int   `yaml:"port"`
	ReadTimeoutSec  int   `yaml:"read_timeout_sec"`
	WriteTimeoutSec int   `yaml:"write_timeout_sec"`
	ShutdownSec     int   `yaml:"shutdown_timeout_sec"`
	MaxBodyBytes    int64 `yaml:"max_body_bytes"`
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"` // empty disables auth
}

// DatabaseConfig holds raw result store settings.
type DatabaseConfig struct {
	Driver           string   `yaml:"driver"` // none, redis, valkey, bolt (default: none)
	Addrs            []string `yaml:"addrs"`
	Username         string   `yaml:"username"`
	Password         string   `yaml:"password"`
	DB               int      `yaml:"db"`
	Path             string   `yaml:"path"` // bolt file
	TTLSec           int      `yaml:"ttl_sec"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// DecodeConfig holds span enumeration settings.
type DecodeConfig struct {
	Mode                string `yaml:"mode"`
	NBestSize           int    `yaml:"n_best_size"`
	MaxAnswerLength     int    `yaml:"max_answer_length"`
	MaxLongAnswerLength int    `yaml:"max_long_answer_length"`
	LongNTop            int    `yaml:"long_n_top"`
	ShortNTop           int    `yaml:"short_n_top"`
	TopLevelOnly        *bool  `yaml:"top_level_only"`
	Workers             int    `yaml:"workers"`
}

// InputConfig holds input file paths. .gz and .zst files are decompressed on read.
type InputConfig struct {
	EvalPath     string `yaml:"eval_path"`
	FeaturesPath string `yaml:"features_path"`
	ResultsPath  string `yaml:"results_path"`
}

// OutputConfig holds output file paths and the submission cutoff.
type OutputConfig struct {
	PredictionsPath      string   `yaml:"predictions_path"`
	SubmissionPath       string   `yaml:"submission_path"`
	SampleSubmissionPath string   `yaml:"sample_submission_path"`
	MetricsPath          string   `yaml:"metrics_path"` // eval report, optional
	Threshold            *float64 `yaml:"threshold"`
}

// ResultsConfig controls how raw results flow through the store.
type ResultsConfig struct {
	Persist bool `yaml:"persist"` // write results read from results_path into the store
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	return Parse(data)
}

// Parse decodes YAML configuration, expands ${VAR} references, applies
// defaults and validates the result.
func Parse(data []byte) (Config, error) {
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 30
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 60
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.HTTP.MaxBodyBytes <= 0 {
		c.HTTP.MaxBodyBytes = 64 << 20
	}
	if c.Database.Driver == "" {
		c.Database.Driver = DriverNone
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Decode.Mode == "" {
		c.Decode.Mode = ModeBatch
	}
	if c.Decode.NBestSize <= 0 {
		c.Decode.NBestSize = 20
	}
	if c.Decode.MaxAnswerLength <= 0 {
		c.Decode.MaxAnswerLength = 30
	}
	if c.Decode.MaxLongAnswerLength <= 0 {
		c.Decode.MaxLongAnswerLength = 512
	}
	if c.Decode.LongNTop <= 0 {
		c.Decode.LongNTop = 5
	}
	if c.Decode.ShortNTop <= 0 {
		c.Decode.ShortNTop = 5
	}
	if c.Decode.TopLevelOnly == nil {
		v := true
		c.Decode.TopLevelOnly = &v
	}
	if c.Output.Threshold == nil {
		v := 1.5
		c.Output.Threshold = &v
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverNone:
	case DriverRedis, DriverValkey:
		if len(c.Database.Addrs) == 0 {
			return fmt.Errorf("database.addrs is required for driver %q", c.Database.Driver)
		}
	case DriverBolt:
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for driver %q", c.Database.Driver)
		}
	default:
		return fmt.Errorf("database.driver must be one of none, redis, valkey, bolt; got %q", c.Database.Driver)
	}
	if c.Database.TTLSec < 0 {
		return fmt.Errorf("database.ttl_sec must not be negative, got %d", c.Database.TTLSec)
	}
	if c.Decode.Workers < 0 {
		return fmt.Errorf("decode.workers must not be negative, got %d", c.Decode.Workers)
	}
	if c.Results.Persist && !c.HasStore() {
		return fmt.Errorf("results.persist requires a database driver")
	}

	switch c.Decode.Mode {
	case ModeBatch:
		if c.Input.EvalPath == "" || c.Input.FeaturesPath == "" {
			return fmt.Errorf("input.eval_path and input.features_path are required in batch mode")
		}
		if c.Input.ResultsPath == "" && !c.HasStore() {
			return fmt.Errorf("input.results_path is required when no database driver is configured")
		}
		if c.Output.PredictionsPath == "" {
			return fmt.Errorf("output.predictions_path is required in batch mode")
		}
	case ModeServe:
		if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
			return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
		}
	case ModeSubmit:
		if c.Output.PredictionsPath == "" || c.Output.SubmissionPath == "" {
			return fmt.Errorf("output.predictions_path and output.submission_path are required in submit mode")
		}
	case ModeEval:
		if c.Input.EvalPath == "" || c.Output.PredictionsPath == "" {
			return fmt.Errorf("input.eval_path and output.predictions_path are required in eval mode")
		}
	default:
		return fmt.Errorf("decode.mode must be one of batch, serve, submit, eval; got %q", c.Decode.Mode)
	}
	return nil
}

// HasStore reports whether a raw result store is configured.
func (c *Config) HasStore() bool {
	return c.Database.Driver != DriverNone
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
