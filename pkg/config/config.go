package config

import (
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Addr returns host:port for HTTP server.
func (c *Config) Addr() string {
	addr := c.Server.Address
	if addr == "" {
		addr = "0.0.0.0"
	}
	p := c.Server.Port
	if p == 0 {
		p = 8080
	}
	return fmt.Sprintf("%s:%d", addr, p)
}

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ParseCommandFlags defines and parses command-line flags and returns their
// values along with a map indicating which flags were explicitly set.
func ParseCommandFlags() (addr string, dbPath string, cfgPath string, setFlags map[string]bool) {
	addrPtr := flag.String("addr", ":8080", "HTTP listen address")
	dbPtr := flag.String("db", "./.database", "Pebble DB path")
	cfgPtr := flag.String("config", "./config.yaml", "Path to config file")
	flag.Parse()
	setFlags = map[string]bool{}
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = true })
	return *addrPtr, *dbPtr, *cfgPtr, setFlags
}

// LoadEnvOverrides applies environment overrides onto the provided cfg and
// reports whether any env vars were used.
func LoadEnvOverrides(cfg *Config) bool {
	envUsed := false
	parseList := func(v string) []string {
		if v == "" {
			return nil
		}
		parts := []string{}
		for _, p := range strings.Split(v, ",") {
			if s := strings.TrimSpace(p); s != "" {
				parts = append(parts, s)
			}
		}
		return parts
	}

	if v := os.Getenv("CHATRELAY_ADDR"); v != "" {
		envUsed = true
		if h, p, err := net.SplitHostPort(v); err == nil {
			cfg.Server.Address = h
			if pi, err := strconv.Atoi(p); err == nil {
				cfg.Server.Port = pi
			}
		} else {
			cfg.Server.Address = v
		}
	} else {
		if host := os.Getenv("CHATRELAY_ADDRESS"); host != "" {
			envUsed = true
			cfg.Server.Address = host
		}
		if port := os.Getenv("CHATRELAY_PORT"); port != "" {
			envUsed = true
			if pi, err := strconv.Atoi(port); err == nil {
				cfg.Server.Port = pi
			}
		}
	}

	if v := os.Getenv("CHATRELAY_DB_PATH"); v != "" {
		envUsed = true
		cfg.Server.DBPath = v
	}
	if v := os.Getenv("CHATRELAY_CORS_ORIGINS"); v != "" {
		envUsed = true
		cfg.Security.CORS.AllowedOrigins = parseList(v)
	}
	if v := os.Getenv("CHATRELAY_RATE_RPS"); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			envUsed = true
			cfg.Security.RateLimit.RPS = f
		}
	}
	if v := os.Getenv("CHATRELAY_RATE_BURST"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			envUsed = true
			cfg.Security.RateLimit.Burst = n
		}
	}
	if v := os.Getenv("CHATRELAY_IP_WHITELIST"); v != "" {
		envUsed = true
		cfg.Security.IPWhitelist = parseList(v)
	}

	if v := os.Getenv("CHATRELAY_OIDC_ISSUER"); v != "" {
		envUsed = true
		cfg.Identity.Issuer = v
	}
	if v := os.Getenv("CHATRELAY_OIDC_AUDIENCE"); v != "" {
		envUsed = true
		cfg.Identity.Audience = v
	}
	if v := os.Getenv("CHATRELAY_HS256_SECRET"); v != "" {
		envUsed = true
		cfg.Identity.HS256Secret = v
	}

	if v := os.Getenv("CHATRELAY_BLOB_ENDPOINT"); v != "" {
		envUsed = true
		cfg.Blob.Endpoint = v
	}
	if v := os.Getenv("CHATRELAY_BLOB_REGION"); v != "" {
		envUsed = true
		cfg.Blob.Region = v
	}
	if v := os.Getenv("CHATRELAY_BLOB_BUCKET"); v != "" {
		envUsed = true
		cfg.Blob.Bucket = v
	}
	if v := os.Getenv("CHATRELAY_BLOB_ACCESS_KEY_ID"); v != "" {
		envUsed = true
		cfg.Blob.AccessKeyID = v
	}
	if v := os.Getenv("CHATRELAY_BLOB_SECRET_ACCESS_KEY"); v != "" {
		envUsed = true
		cfg.Blob.SecretAccessKey = v
	}
	if v := os.Getenv("CHATRELAY_BLOB_PUBLIC_BASE_URL"); v != "" {
		envUsed = true
		cfg.Blob.PublicBaseURL = v
	}

	if c := os.Getenv("CHATRELAY_TLS_CERT"); c != "" {
		envUsed = true
		cfg.Server.TLS.CertFile = c
	}
	if k := os.Getenv("CHATRELAY_TLS_KEY"); k != "" {
		envUsed = true
		cfg.Server.TLS.KeyFile = k
	}
	return envUsed
}

// LoadEffective loads config from the given path (file) and applies environment
// overrides. It returns the effective config and a boolean indicating whether
// env vars were used.
func LoadEffective(path string) (*Config, bool, error) {
	cfg, err := Load(path)
	if err != nil {
		cfg = &Config{}
	}
	envUsed := LoadEnvOverrides(cfg)
	return cfg, envUsed, nil
}

// ResolveConfigPath decides the config file path using the flag-provided value
// and the environment variable `CHATRELAY_CONFIG` when the flag was not set.
func ResolveConfigPath(flagPath string, flagSet bool) string {
	if flagSet {
		return flagPath
	}
	if p := os.Getenv("CHATRELAY_CONFIG"); p != "" {
		return p
	}
	return flagPath
}

// BuildEffective merges flag values over the loaded config and records which
// source won for the startup banner. Flags explicitly set win over env/config.
func BuildEffective(cfg *Config, addrFlag, dbFlag string, setFlags map[string]bool, envUsed bool) EffectiveConfigResult {
	eff := EffectiveConfigResult{Config: cfg}

	if setFlags["addr"] {
		eff.Addr = addrFlag
	} else {
		eff.Addr = cfg.Addr()
	}
	if setFlags["db"] {
		eff.DBPath = dbFlag
	} else if cfg.Server.DBPath != "" {
		eff.DBPath = cfg.Server.DBPath
	} else {
		eff.DBPath = dbFlag
	}

	switch {
	case len(setFlags) > 0:
		eff.Source = "flags"
	case envUsed:
		eff.Source = "env"
	default:
		eff.Source = "config"
	}
	return eff
}
