package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// DefaultDumpURL is where AEMPS publishes the Nomenclator prescription dump.
const DefaultDumpURL = "https://listadomedicamentos.aemps.gob.es/prescripcion.zip"

// EnvPrefix namespaces environment overrides, e.g. NOMENCLATOR_WORK_DIR.
const EnvPrefix = "NOMENCLATOR"

const (
	DefaultWorkDir     = "./nomenclator_xml"
	DefaultOutputDir   = "./nomenclator_csv"
	DefaultDbPath      = "./nomenclator_state.duckdb"
	DefaultHTTPTimeout = 120 * time.Second
	DefaultUserAgent   = "nomenclator/1.0 (+https://github.com/brensch/nomenclator)"
	DefaultSchedule    = "06:00;18:00"
	DefaultMetricsAddr = ":9464"
)

var (
	// Default number of workers, often set to CPU count.
	DefaultNumWorkers = runtime.NumCPU()
)

// Config holds application settings. Keys double as viper keys, flag names
// (with '_' spelled '-') and, upper-cased with EnvPrefix, environment variables.
type Config struct {
	WorkDir           string        `mapstructure:"work_dir"`
	OutputDir         string        `mapstructure:"output_dir"`
	Concurrency       int           `mapstructure:"concurrency"`
	DumpURL           string        `mapstructure:"dump_url"`
	HTTPTimeout       time.Duration `mapstructure:"http_timeout"`
	UserAgent         string        `mapstructure:"user_agent"`
	DownloadRateBytes int64         `mapstructure:"download_rate_bytes"`
	DbPath            string        `mapstructure:"db_path"`
	LogLevel          string        `mapstructure:"log_level"`
	LogFormat         string        `mapstructure:"log_format"`
	LogOutput         string        `mapstructure:"log_output"`
	Schedule          string        `mapstructure:"schedule"`
	MetricsAddr       string        `mapstructure:"metrics_addr"`
	LoadTarget        string        `mapstructure:"load_target"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		WorkDir:     DefaultWorkDir,
		OutputDir:   DefaultOutputDir,
		Concurrency: DefaultNumWorkers,
		DumpURL:     DefaultDumpURL,
		HTTPTimeout: DefaultHTTPTimeout,
		UserAgent:   DefaultUserAgent,
		DbPath:      DefaultDbPath,
		LogLevel:    "info",
		LogFormat:   "text",
		LogOutput:   "stderr",
		Schedule:    DefaultSchedule,
		MetricsAddr: DefaultMetricsAddr,
	}
}

// SetDefaults registers every key of Default on v so that environment
// variables are picked up by Unmarshal.
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("work_dir", d.WorkDir)
	v.SetDefault("output_dir", d.OutputDir)
	v.SetDefault("concurrency", d.Concurrency)
	v.SetDefault("dump_url", d.DumpURL)
	v.SetDefault("http_timeout", d.HTTPTimeout)
	v.SetDefault("user_agent", d.UserAgent)
	v.SetDefault("download_rate_bytes", d.DownloadRateBytes)
	v.SetDefault("db_path", d.DbPath)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_format", d.LogFormat)
	v.SetDefault("log_output", d.LogOutput)
	v.SetDefault("schedule", d.Schedule)
	v.SetDefault("metrics_addr", d.MetricsAddr)
	v.SetDefault("load_target", d.LoadTarget)
}

// Load resolves the configuration from, lowest precedence first: defaults,
// configFile (if set), NOMENCLATOR_* environment variables (a .env file only
// fills variables not already set) and whatever flags the caller bound on v.
func Load(v *viper.Viper, configFile string) (Config, error) {
	// A missing .env is normal; a malformed one is not.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

// Validate rejects settings no command can run with.
func (c Config) Validate() error {
	var errs []error
	if c.WorkDir == "" {
		errs = append(errs, errors.New("work_dir is required"))
	}
	if c.OutputDir == "" {
		errs = append(errs, errors.New("output_dir is required"))
	}
	if c.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("concurrency must be positive, got %d", c.Concurrency))
	}
	if u, err := url.Parse(c.DumpURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("dump_url %q is not an http(s) URL", c.DumpURL))
	}
	if c.DownloadRateBytes < 0 {
		errs = append(errs, fmt.Errorf("download_rate_bytes must not be negative, got %d", c.DownloadRateBytes))
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log_format must be text or json, got %q", c.LogFormat))
	}
	return errors.Join(errs...)
}
