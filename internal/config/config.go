package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const DefaultGatewayURL = "https://ipfs.io/ipfs/"

// Config holds everything the portal reads from the environment.
type Config struct {
	Port            int
	RPCURL          string
	ContractAddress string
	GatewayURL      string
	DatabaseURL     string
	ShareSecret     []byte
	BaseURL         string
	AllowedOrigins  []string
	LogLevel        string
	LogFormat       string
	SessionIdleTTL  time.Duration
	SessionMax      int
}

var (
	ErrMissingRPCURL   = errors.New("ETH_RPC_URL is required")
	ErrMissingContract = errors.New("CERTIFICATE_CONTRACT_ADDRESS is required")
)

// Load reads .env files (if any) and then the process environment.
func Load(files ...string) (*Config, error) {
	// a missing .env is normal outside local dev
	_ = godotenv.Load(files...)
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function so tests don't have to
// touch the real environment.
func FromEnv(getenv func(string) string) (*Config, error) {
	cfg := &Config{
		Port:           8080,
		GatewayURL:     DefaultGatewayURL,
		BaseURL:        "http://localhost:8080",
		AllowedOrigins: []string{"*"},
		LogLevel:       "info",
		LogFormat:      "json",
		SessionIdleTTL: 30 * time.Minute,
		SessionMax:     10000,
	}

	if v := getenv("PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil || p <= 0 || p > 65535 {
			return nil, fmt.Errorf("invalid PORT %q", v)
		}
		cfg.Port = p
	}

	cfg.RPCURL = strings.TrimSpace(getenv("ETH_RPC_URL"))
	if cfg.RPCURL == "" {
		return nil, ErrMissingRPCURL
	}
	cfg.ContractAddress = strings.TrimSpace(getenv("CERTIFICATE_CONTRACT_ADDRESS"))
	if cfg.ContractAddress == "" {
		return nil, ErrMissingContract
	}

	if v := strings.TrimSpace(getenv("IPFS_GATEWAY_URL")); v != "" {
		cfg.GatewayURL = v
	}
	if !strings.HasSuffix(cfg.GatewayURL, "/") {
		cfg.GatewayURL += "/"
	}

	// DB_URL wins over the hosting-provider style DATABASE_URL
	cfg.DatabaseURL = getenv("DB_URL")
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = getenv("DATABASE_URL")
	}

	if s := getenv("SHARE_TOKEN_SECRET"); s != "" {
		cfg.ShareSecret = []byte(s)
	} else if s := getenv("JWT_SECRET"); s != "" {
		cfg.ShareSecret = []byte(s)
	}

	if v := getenv("FRONTEND_BASE_URL"); v != "" {
		cfg.BaseURL = strings.TrimRight(v, "/")
	}

	if v := getenv("ALLOWED_ORIGINS"); v != "" {
		var origins []string
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		if len(origins) > 0 {
			cfg.AllowedOrigins = origins
		}
	}

	if v := getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}
	if v := getenv("LOG_FORMAT"); v != "" {
		switch f := strings.ToLower(v); f {
		case "json", "console":
			cfg.LogFormat = f
		default:
			return nil, fmt.Errorf("invalid LOG_FORMAT %q (want json or console)", v)
		}
	}

	if v := getenv("SESSION_IDLE_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("invalid SESSION_IDLE_TTL %q", v)
		}
		cfg.SessionIdleTTL = d
	}
	if v := getenv("SESSION_MAX"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid SESSION_MAX %q", v)
		}
		cfg.SessionMax = n
	}

	return cfg, nil
}

// Addr is the listen address for http.Server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) AuditEnabled() bool { return c.DatabaseURL != "" }

func (c *Config) ShareLinksEnabled() bool { return len(c.ShareSecret) > 0 }
