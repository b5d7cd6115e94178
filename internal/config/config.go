package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Object storage
	OSSProvider        string // "aliyun" | "local" | ""
	OSSEndpoint        string
	OSSBucket          string
	OSSBasePrefix      string
	OSSAccessKeyID     string
	OSSAccessKeySecret string
	OSSLocalDir        string

	// Local provider capability signing (see cmd/objgateway)
	LocalGatewayURL string
	LocalSigningKey string
	LocalVerifyKey  string

	// Base URL agents read public objects from. Derived from the provider when empty.
	PublicBaseURL string

	ChannelCount         int
	CapabilityTTLSeconds int
	RefreshMarginSeconds int
	PollIntervalMillis   int
	GrantTimeoutSeconds  int
	HTTPTimeoutSeconds   int

	GatewayAddr string
}

func Load() (Config, error) {
	// Optional: load local .env for development. Missing file is fine.
	_ = godotenv.Load()

	channels := getenvIntDefault("RELAY_CHANNEL_COUNT", 5)
	if channels < 1 {
		channels = 1
	}
	if channels > 64 {
		channels = 64
	}

	ttl := getenvIntDefault("RELAY_CAPABILITY_TTL_SECONDS", 25*3600)
	if ttl < 120 {
		ttl = 120
	}
	// OSS and S3 both refuse signatures valid for more than 7 days.
	if ttl > 7*24*3600 {
		ttl = 7 * 24 * 3600
	}

	margin := getenvIntDefault("RELAY_REFRESH_MARGIN_SECONDS", 3600)
	if margin < 60 {
		margin = 60
	}
	if margin >= ttl {
		margin = ttl / 2
	}

	pollMillis := getenvIntDefault("RELAY_POLL_INTERVAL_MS", 1000)
	if pollMillis < 50 {
		pollMillis = 50
	}

	grantTimeout := getenvIntDefault("RELAY_GRANT_TIMEOUT_SECONDS", 0)
	if grantTimeout < 0 {
		grantTimeout = 0
	}

	httpTimeout := getenvIntDefault("RELAY_HTTP_TIMEOUT_SECONDS", 30)
	if httpTimeout < 1 {
		httpTimeout = 1
	}

	cfg := Config{
		OSSProvider:        strings.ToLower(strings.TrimSpace(os.Getenv("RELAY_OSS_PROVIDER"))),
		OSSEndpoint:        strings.TrimSpace(os.Getenv("RELAY_OSS_ENDPOINT")),
		OSSBucket:          strings.TrimSpace(os.Getenv("RELAY_OSS_BUCKET")),
		OSSBasePrefix:      strings.Trim(strings.TrimSpace(os.Getenv("RELAY_OSS_BASE_PREFIX")), "/"),
		OSSAccessKeyID:     strings.TrimSpace(os.Getenv("RELAY_OSS_ACCESS_KEY_ID")),
		OSSAccessKeySecret: strings.TrimSpace(os.Getenv("RELAY_OSS_ACCESS_KEY_SECRET")),
		OSSLocalDir:        strings.TrimSpace(os.Getenv("RELAY_OSS_LOCAL_DIR")),

		LocalGatewayURL: strings.TrimRight(strings.TrimSpace(os.Getenv("RELAY_LOCAL_GATEWAY_URL")), "/"),
		LocalSigningKey: strings.TrimSpace(os.Getenv("RELAY_LOCAL_SIGNING_KEY")),
		LocalVerifyKey:  strings.TrimSpace(os.Getenv("RELAY_LOCAL_VERIFY_KEY")),

		PublicBaseURL: strings.TrimRight(strings.TrimSpace(os.Getenv("RELAY_PUBLIC_BASE_URL")), "/"),

		ChannelCount:         channels,
		CapabilityTTLSeconds: ttl,
		RefreshMarginSeconds: margin,
		PollIntervalMillis:   pollMillis,
		GrantTimeoutSeconds:  grantTimeout,
		HTTPTimeoutSeconds:   httpTimeout,

		GatewayAddr: getenvDefault("RELAY_GATEWAY_ADDR", ":9000"),
	}
	return cfg, nil
}

func (c Config) CapabilityTTL() time.Duration {
	return time.Duration(c.CapabilityTTLSeconds) * time.Second
}

func (c Config) RefreshMargin() time.Duration {
	return time.Duration(c.RefreshMarginSeconds) * time.Second
}

func (c Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMillis) * time.Millisecond
}

func (c Config) GrantTimeout() time.Duration {
	return time.Duration(c.GrantTimeoutSeconds) * time.Second
}

func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutSeconds) * time.Second
}

// ValidateController checks the settings the controller needs: full storage
// credentials and a way to sign capabilities.
func (c Config) ValidateController() error {
	switch c.OSSProvider {
	case "aliyun":
		if c.OSSEndpoint == "" || c.OSSBucket == "" || c.OSSAccessKeyID == "" || c.OSSAccessKeySecret == "" {
			return errors.New("RELAY_OSS_ENDPOINT, RELAY_OSS_BUCKET, RELAY_OSS_ACCESS_KEY_ID and RELAY_OSS_ACCESS_KEY_SECRET are required for aliyun")
		}
	case "local":
		if c.OSSLocalDir == "" {
			return errors.New("RELAY_OSS_LOCAL_DIR is required when RELAY_OSS_PROVIDER=local")
		}
		if c.LocalGatewayURL == "" || c.LocalSigningKey == "" {
			return errors.New("RELAY_LOCAL_GATEWAY_URL and RELAY_LOCAL_SIGNING_KEY are required when RELAY_OSS_PROVIDER=local")
		}
	default:
		return errors.New("unsupported OSS provider (set RELAY_OSS_PROVIDER=aliyun|local)")
	}
	return nil
}

// ValidateAgent checks the settings the agent needs. Agents hold no
// storage credentials.
func (c Config) ValidateAgent() error {
	if c.PublicBaseURL == "" {
		return errors.New("RELAY_PUBLIC_BASE_URL is required")
	}
	return nil
}

func (c Config) ValidateGateway() error {
	if c.OSSLocalDir == "" {
		return errors.New("RELAY_OSS_LOCAL_DIR is required")
	}
	if c.LocalVerifyKey == "" && c.LocalSigningKey == "" {
		return errors.New("RELAY_LOCAL_VERIFY_KEY (or RELAY_LOCAL_SIGNING_KEY) is required")
	}
	return nil
}

func getenvDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvIntDefault(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
