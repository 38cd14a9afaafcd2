package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Dedup   DedupConfig   `yaml:"dedup" mapstructure:"dedup"`
	Match   MatchConfig   `yaml:"match" mapstructure:"match"`
	Region  RegionConfig  `yaml:"region" mapstructure:"region"`
	Chandra ChandraConfig `yaml:"chandra" mapstructure:"chandra"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the run database.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// DedupConfig configures within-catalog duplicate collapse.
type DedupConfig struct {
	ToleranceArcsec float64 `yaml:"tolerance_arcsec" mapstructure:"tolerance_arcsec"`
	RankKey         string  `yaml:"rank_key" mapstructure:"rank_key"`
	RAColumn        string  `yaml:"ra_column" mapstructure:"ra_column"`
	DecColumn       string  `yaml:"dec_column" mapstructure:"dec_column"`
	OnMalformed     string  `yaml:"on_malformed" mapstructure:"on_malformed"`
	Index           string  `yaml:"index" mapstructure:"index"`
}

// MatchConfig configures counterpart matching.
type MatchConfig struct {
	ToleranceArcsec float64 `yaml:"tolerance_arcsec" mapstructure:"tolerance_arcsec"`
	PrimaryID       string  `yaml:"primary_id" mapstructure:"primary_id"`
	PrimaryRA       string  `yaml:"primary_ra" mapstructure:"primary_ra"`
	PrimaryDec      string  `yaml:"primary_dec" mapstructure:"primary_dec"`
	SecondaryRA     string  `yaml:"secondary_ra" mapstructure:"secondary_ra"`
	SecondaryDec    string  `yaml:"secondary_dec" mapstructure:"secondary_dec"`
	Workers         int     `yaml:"workers" mapstructure:"workers"`
	Index           string  `yaml:"index" mapstructure:"index"`
	Metric          string  `yaml:"metric" mapstructure:"metric"`
	OnMalformed     string  `yaml:"on_malformed" mapstructure:"on_malformed"`
}

// RegionConfig bounds the survey strip in galactic coordinates.
type RegionConfig struct {
	LonColumn string  `yaml:"lon_column" mapstructure:"lon_column"`
	LatColumn string  `yaml:"lat_column" mapstructure:"lat_column"`
	LonMax    float64 `yaml:"lon_max" mapstructure:"lon_max"`
	LatCut    float64 `yaml:"lat_cut" mapstructure:"lat_cut"`
}

// ChandraConfig holds the X-ray positional error model.
type ChandraConfig struct {
	SystematicArcsec float64 `yaml:"systematic_arcsec" mapstructure:"systematic_arcsec"`
	BoresightArcsec  float64 `yaml:"boresight_arcsec" mapstructure:"boresight_arcsec"`
	BoresightScale   float64 `yaml:"boresight_scale" mapstructure:"boresight_scale"`
	IDPrefix         string  `yaml:"id_prefix" mapstructure:"id_prefix"`
}

// ServerConfig configures the read API.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
	// RateLimit is the sustained request rate per second across all clients.
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	RateBurst int     `yaml:"rate_burst" mapstructure:"rate_burst"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from .env, config.yaml and the environment.
func Load() (*Config, error) { return LoadFile("") }

// LoadFile is Load with an explicit config file. An empty path searches the
// working directory for config.yaml, which may be absent; a named file must
// exist.
func LoadFile(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, eris.Wrap(err, "config: load .env")
	}

	v := viper.New()

	// Config file
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	// Environment
	v.SetEnvPrefix("GBS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "gbs.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.rate_limit", 20.0)
	v.SetDefault("server.rate_burst", 40)
	v.SetDefault("dedup.tolerance_arcsec", 2.5)
	v.SetDefault("dedup.rank_key", "DIST_2_FOV")
	v.SetDefault("dedup.ra_column", "GLX_RA")
	v.SetDefault("dedup.dec_column", "GLX_DEC")
	v.SetDefault("dedup.on_malformed", "abort")
	v.SetDefault("dedup.index", "linear")
	v.SetDefault("match.tolerance_arcsec", 5.0)
	v.SetDefault("match.primary_id", "GBS_NAME")
	v.SetDefault("match.primary_ra", "X_RAJ2000")
	v.SetDefault("match.primary_dec", "X_DEJ2000")
	v.SetDefault("match.secondary_ra", "GLX_RA")
	v.SetDefault("match.secondary_dec", "GLX_DEC")
	v.SetDefault("match.workers", 4)
	v.SetDefault("match.index", "linear")
	v.SetDefault("match.metric", "planar")
	v.SetDefault("match.on_malformed", "abort")
	v.SetDefault("region.lon_column", "glon")
	v.SetDefault("region.lat_column", "glat")
	v.SetDefault("region.lon_max", 3.1)
	v.SetDefault("region.lat_cut", 0.83)
	v.SetDefault("chandra.systematic_arcsec", 0.7)
	v.SetDefault("chandra.boresight_arcsec", 0.16)
	v.SetDefault("chandra.boresight_scale", 0.4085)
	v.SetDefault("chandra.id_prefix", "CX")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

var (
	indexKinds = map[string]bool{"linear": true, "grid": true}
	metrics    = map[string]bool{"planar": true, "great_circle": true}
	policies   = map[string]bool{"abort": true, "skip": true}
)

// Validate checks the fields a command mode depends on. Modes: dedup, match,
// store, serve.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "dedup":
		if !(c.Dedup.ToleranceArcsec > 0) {
			errs = append(errs, "dedup.tolerance_arcsec must be > 0")
		}
		if !indexKinds[c.Dedup.Index] {
			errs = append(errs, fmt.Sprintf("dedup.index %q must be linear or grid", c.Dedup.Index))
		}
		if !policies[c.Dedup.OnMalformed] {
			errs = append(errs, fmt.Sprintf("dedup.on_malformed %q must be abort or skip", c.Dedup.OnMalformed))
		}
	case "match":
		if !(c.Match.ToleranceArcsec > 0) {
			errs = append(errs, "match.tolerance_arcsec must be > 0")
		}
		if c.Match.PrimaryID == "" {
			errs = append(errs, "match.primary_id is required")
		}
		if c.Match.Workers < 0 || c.Match.Workers > 256 {
			errs = append(errs, "match.workers must be between 0 and 256")
		}
		if !indexKinds[c.Match.Index] {
			errs = append(errs, fmt.Sprintf("match.index %q must be linear or grid", c.Match.Index))
		}
		if !metrics[c.Match.Metric] {
			errs = append(errs, fmt.Sprintf("match.metric %q must be planar or great_circle", c.Match.Metric))
		}
		if !policies[c.Match.OnMalformed] {
			errs = append(errs, fmt.Sprintf("match.on_malformed %q must be abort or skip", c.Match.OnMalformed))
		}
	case "store":
		errs = append(errs, c.storeErrors()...)
	case "serve":
		errs = append(errs, c.storeErrors()...)
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, "server.port must be > 0 and <= 65535")
		}
		if c.Server.RateLimit < 0 || c.Server.RateBurst < 0 {
			errs = append(errs, "server.rate_limit and server.rate_burst must be >= 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) storeErrors() []string {
	var errs []string
	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q must be sqlite or postgres", c.Store.Driver))
	}
	if c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required")
	}
	return errs
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
