package app

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"eucl/cmd/internal/auth/api"
	"eucl/cmd/internal/auth/session"
	"eucl/cmd/security/password"
)

// EnvConfigFile names an optional YAML/JSON/TOML config file. Environment
// variables (EUCL_<SECTION>_<KEY>) override it.
const EnvConfigFile = "EUCL_CONFIG_FILE"

// Revocation backends.
const (
	RevocationMemory   = "memory"
	RevocationPostgres = "postgres"
)

// Config contains all runtime configuration.
type Config struct {
	HTTP     HTTPConfig     `mapstructure:"http"`
	Log      LogConfig      `mapstructure:"log"`
	Database DatabaseConfig `mapstructure:"database"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Token    TokenConfig    `mapstructure:"token"`
	Password PasswordConfig `mapstructure:"password"`
	Admin    AdminConfig    `mapstructure:"admin"`
}

type HTTPConfig struct {
	Addr              string        `mapstructure:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
	MaxHeaderBytes    int           `mapstructure:"max_header_bytes"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type DatabaseConfig struct {
	// URL empty selects in-memory stores.
	URL      string `mapstructure:"url"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
	Migrate  bool   `mapstructure:"migrate"`

	// RequiredForReady makes /readyz return 503 unless Postgres is
	// configured and reachable.
	RequiredForReady bool `mapstructure:"required_for_ready"`
}

type AuthConfig struct {
	Issuer            string        `mapstructure:"issuer"`
	AccessTTL         time.Duration `mapstructure:"access_ttl"`
	RefreshTTL        time.Duration `mapstructure:"refresh_ttl"`
	ClockSkew         time.Duration `mapstructure:"clock_skew"`
	RefreshTokenBytes int           `mapstructure:"refresh_token_bytes"`
	SigningAlg        string        `mapstructure:"signing_alg"`
	SigningKey        string        `mapstructure:"signing_key"`
	SweepInterval     time.Duration `mapstructure:"sweep_interval"`
	RevocationBackend string        `mapstructure:"revocation_backend"`

	MaxBodyBytes  int64         `mapstructure:"max_body_bytes"`
	TrustProxy    bool          `mapstructure:"trust_proxy"`
	LoginIPMax    int           `mapstructure:"login_ip_max"`
	LoginIPWindow time.Duration `mapstructure:"login_ip_window"`
}

type TokenConfig struct {
	HMACKey     string `mapstructure:"hmac_key"`
	RequireHMAC bool   `mapstructure:"require_hmac"`
}

type PasswordConfig struct {
	MemoryKiB   uint32 `mapstructure:"memory_kib"`
	Iterations  uint32 `mapstructure:"iterations"`
	Parallelism uint8  `mapstructure:"parallelism"`
	MinLength   int    `mapstructure:"min_length"`
}

// AdminConfig seeds an administrator at startup when Email is set.
type AdminConfig struct {
	Name     string `mapstructure:"name"`
	Email    string `mapstructure:"email"`
	Password string `mapstructure:"password"`
}

func setDefaults(v *viper.Viper) {
	sess := session.DefaultConfig()
	pw := password.DefaultConfig()
	apiCfg := api.DefaultConfig()

	v.SetDefault("http.addr", "0.0.0.0:8080")
	v.SetDefault("http.read_header_timeout", "5s")
	v.SetDefault("http.read_timeout", "15s")
	v.SetDefault("http.write_timeout", "15s")
	v.SetDefault("http.idle_timeout", "60s")
	v.SetDefault("http.shutdown_timeout", "10s")
	v.SetDefault("http.max_header_bytes", 1<<20)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("database.url", "")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 0)
	v.SetDefault("database.migrate", true)
	v.SetDefault("database.required_for_ready", false)

	v.SetDefault("auth.issuer", sess.Issuer)
	v.SetDefault("auth.access_ttl", sess.AccessTokenTTL)
	v.SetDefault("auth.refresh_ttl", sess.RefreshTokenTTL)
	v.SetDefault("auth.clock_skew", sess.ClockSkew)
	v.SetDefault("auth.refresh_token_bytes", sess.RefreshTokenBytes)
	v.SetDefault("auth.signing_alg", sess.SigningAlgorithm)
	v.SetDefault("auth.signing_key", "")
	v.SetDefault("auth.sweep_interval", sess.SweepInterval)
	v.SetDefault("auth.revocation_backend", RevocationMemory)
	v.SetDefault("auth.max_body_bytes", apiCfg.MaxBodyBytes)
	v.SetDefault("auth.trust_proxy", false)
	v.SetDefault("auth.login_ip_max", apiCfg.LoginIPMax)
	v.SetDefault("auth.login_ip_window", apiCfg.LoginIPWindow)

	v.SetDefault("token.hmac_key", "")
	v.SetDefault("token.require_hmac", false)

	v.SetDefault("password.memory_kib", pw.Params.MemoryKiB)
	v.SetDefault("password.iterations", pw.Params.Iterations)
	v.SetDefault("password.parallelism", 0) // 0 keeps the CPU-derived default
	v.SetDefault("password.min_length", pw.Policy.MinLength)

	v.SetDefault("admin.name", "Administrator")
	v.SetDefault("admin.email", "")
	v.SetDefault("admin.password", "")
}

// LoadConfig reads defaults, the optional config file and EUCL_* env vars.
func LoadConfig() (Config, error) {
	v := viper.New()
	setDefaults(v)

	if path := strings.TrimSpace(os.Getenv(EnvConfigFile)); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	v.SetEnvPrefix("EUCL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	cfg.Auth.RevocationBackend = strings.ToLower(strings.TrimSpace(cfg.Auth.RevocationBackend))
	cfg.Database.URL = strings.TrimSpace(cfg.Database.URL)
	return cfg, nil
}

// Session returns the session subsystem configuration.
func (c Config) Session() session.Config {
	return session.Config{
		Issuer:            c.Auth.Issuer,
		AccessTokenTTL:    c.Auth.AccessTTL,
		RefreshTokenTTL:   c.Auth.RefreshTTL,
		ClockSkew:         c.Auth.ClockSkew,
		RefreshTokenBytes: c.Auth.RefreshTokenBytes,
		SigningAlgorithm:  c.Auth.SigningAlg,
		SigningKey:        c.Auth.SigningKey,
		SweepInterval:     c.Auth.SweepInterval,
	}
}

// API returns the HTTP auth surface configuration.
func (c Config) API() api.Config {
	return api.Config{
		TrustProxy:    c.Auth.TrustProxy,
		MaxBodyBytes:  c.Auth.MaxBodyBytes,
		LoginIPMax:    c.Auth.LoginIPMax,
		LoginIPWindow: c.Auth.LoginIPWindow,
	}
}

// Passwords returns the password hashing configuration.
func (c Config) Passwords() (password.Config, error) {
	pw := password.DefaultConfig()
	if c.Password.MemoryKiB > 0 {
		pw.Params.MemoryKiB = c.Password.MemoryKiB
	}
	if c.Password.Iterations > 0 {
		pw.Params.Iterations = c.Password.Iterations
	}
	if c.Password.Parallelism > 0 {
		pw.Params.Parallelism = c.Password.Parallelism
	}
	if c.Password.MinLength > 0 {
		pw.Policy.MinLength = c.Password.MinLength
	}
	if err := pw.Check(); err != nil {
		return password.Config{}, err
	}
	return pw, nil
}

func (c Config) dbEnabled() bool { return c.Database.URL != "" }

var errConfig = errors.New("invalid config")
