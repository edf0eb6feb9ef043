// Package config loads spawnd settings from an optional TOML file and the
// process environment. Environment values override the file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"swarmspawn/internal/auth"
	"swarmspawn/internal/kv"
	"swarmspawn/pkg/domain"
)

// Environment variable names.
const (
	EnvUserInfoDBPath = "USER_INFO_DB_PATH"
	EnvSwarmsDBPath   = "SWARMS_DB_PATH"
	EnvKVDriver       = "SPAWN_KV_DRIVER"
	EnvPostgresDSN    = "SPAWN_POSTGRES_DSN"
	EnvS3Bucket       = "SPAWN_S3_BUCKET"
	EnvS3Region       = "SPAWN_S3_REGION"
	EnvS3Endpoint     = "SPAWN_S3_ENDPOINT"
	EnvS3PathStyle    = "SPAWN_S3_PATH_STYLE"
	EnvAddr           = "SPAWN_ADDR"
	EnvTokens         = "SPAWN_TOKENS"
	EnvCORSOrigins    = "SPAWN_CORS_ORIGINS"
	EnvStoreTimeout   = "SPAWN_STORE_TIMEOUT"
	EnvLogLevel       = "SPAWN_LOG_LEVEL"
)

const (
	defaultAddr         = ":8080"
	defaultStoreTimeout = 5 * time.Second
)

// S3 locates the bucket used by the s3 driver.
type S3 struct {
	Bucket    string `toml:"bucket"`
	Region    string `toml:"region"`
	Endpoint  string `toml:"endpoint"`
	PathStyle bool   `toml:"path_style"`
}

// Config is the resolved process configuration.
type Config struct {
	Addr           string
	KVDriver       kv.Driver
	UserInfoDBPath string
	SwarmsDBPath   string
	PostgresDSN    string
	S3             S3
	Tokens         map[string]string
	CORSOrigins    []string
	StoreTimeout   time.Duration
	LogLevel       string
	BootstrapUsers []string
}

type fileConfig struct {
	Addr           string            `toml:"addr"`
	KVDriver       string            `toml:"kv_driver"`
	UserInfoDBPath string            `toml:"user_info_db_path"`
	SwarmsDBPath   string            `toml:"swarms_db_path"`
	PostgresDSN    string            `toml:"postgres_dsn"`
	S3             S3                `toml:"s3"`
	Tokens         map[string]string `toml:"tokens"`
	CORSOrigins    []string          `toml:"cors_origins"`
	StoreTimeout   string            `toml:"store_timeout"`
	LogLevel       string            `toml:"log_level"`
	BootstrapUsers []string          `toml:"bootstrap_users"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Addr:         defaultAddr,
		KVDriver:     kv.DriverFilesystem,
		Tokens:       map[string]string{},
		StoreTimeout: defaultStoreTimeout,
		LogLevel:     "info",
	}
}

// Load reads path (skipped when empty) and then applies overrides from
// getenv. A nil getenv reads the process environment.
func Load(path string, getenv func(string) string) (Config, error) {
	if getenv == nil {
		getenv = os.Getenv
	}
	cfg := Default()
	if strings.TrimSpace(path) != "" {
		if err := cfg.applyFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.applyEnv(getenv); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("load spawnd config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("load spawnd config: unknown keys %v", undecoded)
	}
	if meta.IsDefined("addr") {
		c.Addr = strings.TrimSpace(raw.Addr)
	}
	if meta.IsDefined("kv_driver") {
		d, err := kv.ParseDriver(raw.KVDriver)
		if err != nil {
			return domain.ConfigurationError{Setting: "kv_driver", Reason: err.Error()}
		}
		c.KVDriver = d
	}
	if meta.IsDefined("user_info_db_path") {
		c.UserInfoDBPath = strings.TrimSpace(raw.UserInfoDBPath)
	}
	if meta.IsDefined("swarms_db_path") {
		c.SwarmsDBPath = strings.TrimSpace(raw.SwarmsDBPath)
	}
	if meta.IsDefined("postgres_dsn") {
		c.PostgresDSN = strings.TrimSpace(raw.PostgresDSN)
	}
	if meta.IsDefined("s3") {
		c.S3 = raw.S3
	}
	for token, user := range raw.Tokens {
		c.Tokens[token] = user
	}
	if meta.IsDefined("cors_origins") {
		c.CORSOrigins = normalizeList(raw.CORSOrigins)
	}
	if meta.IsDefined("store_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.StoreTimeout))
		if err != nil {
			return domain.ConfigurationError{Setting: "store_timeout", Reason: err.Error()}
		}
		c.StoreTimeout = d
	}
	if meta.IsDefined("log_level") {
		c.LogLevel = strings.TrimSpace(raw.LogLevel)
	}
	if meta.IsDefined("bootstrap_users") {
		c.BootstrapUsers = normalizeList(raw.BootstrapUsers)
	}
	return nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	set := func(name string, dst *string) {
		if v := strings.TrimSpace(getenv(name)); v != "" {
			*dst = v
		}
	}
	set(EnvAddr, &c.Addr)
	set(EnvUserInfoDBPath, &c.UserInfoDBPath)
	set(EnvSwarmsDBPath, &c.SwarmsDBPath)
	set(EnvPostgresDSN, &c.PostgresDSN)
	set(EnvS3Bucket, &c.S3.Bucket)
	set(EnvS3Region, &c.S3.Region)
	set(EnvS3Endpoint, &c.S3.Endpoint)
	set(EnvLogLevel, &c.LogLevel)

	if v := getenv(EnvKVDriver); strings.TrimSpace(v) != "" {
		d, err := kv.ParseDriver(v)
		if err != nil {
			return domain.ConfigurationError{Setting: EnvKVDriver, Reason: err.Error()}
		}
		c.KVDriver = d
	}
	if v := strings.TrimSpace(getenv(EnvS3PathStyle)); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return domain.ConfigurationError{Setting: EnvS3PathStyle, Reason: err.Error()}
		}
		c.S3.PathStyle = b
	}
	if v := strings.TrimSpace(getenv(EnvStoreTimeout)); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return domain.ConfigurationError{Setting: EnvStoreTimeout, Reason: err.Error()}
		}
		c.StoreTimeout = d
	}
	if v := getenv(EnvTokens); strings.TrimSpace(v) != "" {
		tokens, err := auth.ParseTokens(v)
		if err != nil {
			return domain.ConfigurationError{Setting: EnvTokens, Reason: err.Error()}
		}
		for token, user := range tokens {
			c.Tokens[token] = user
		}
	}
	if v := getenv(EnvCORSOrigins); strings.TrimSpace(v) != "" {
		c.CORSOrigins = normalizeList(strings.Split(v, ","))
	}
	return nil
}

// Validate checks that the settings needed to serve requests are present.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Addr) == "" {
		return domain.ConfigurationError{Setting: EnvAddr}
	}
	if c.KVDriver != kv.DriverMemory {
		if c.UserInfoDBPath == "" {
			return domain.ConfigurationError{Setting: EnvUserInfoDBPath}
		}
		if c.SwarmsDBPath == "" {
			return domain.ConfigurationError{Setting: EnvSwarmsDBPath}
		}
		if c.UserInfoDBPath == c.SwarmsDBPath {
			return domain.ConfigurationError{Setting: EnvSwarmsDBPath, Reason: "must differ from " + EnvUserInfoDBPath}
		}
	}
	if c.KVDriver == kv.DriverS3 && c.S3.Bucket == "" {
		return domain.ConfigurationError{Setting: EnvS3Bucket}
	}
	if c.StoreTimeout < 0 {
		return domain.ConfigurationError{Setting: EnvStoreTimeout, Reason: "must not be negative"}
	}
	return nil
}

// StoreOptions returns the kv options for the store at location.
func (c Config) StoreOptions(location string) kv.Options {
	return kv.Options{
		Driver:      c.KVDriver,
		Location:    location,
		PostgresDSN: c.PostgresDSN,
		S3: kv.S3Config{
			Bucket:    c.S3.Bucket,
			Region:    c.S3.Region,
			Endpoint:  c.S3.Endpoint,
			PathStyle: c.S3.PathStyle,
		},
	}
}

func normalizeList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
