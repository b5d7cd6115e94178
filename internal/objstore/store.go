package objstore

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"
)

// HTTP methods a capability can be bound to.
const (
	MethodGet    = "GET"
	MethodPut    = "PUT"
	MethodDelete = "DELETE"
)

var ErrNotFound = errors.New("object not found")

type Config struct {
	Provider        string
	Endpoint        string
	Bucket          string
	BasePrefix      string
	AccessKeyID     string
	AccessKeySecret string
	LocalDir        string
	LocalGatewayURL string
	LocalSigningKey string
}

// Store is the credentialed view of the bucket: the controller's side.
// Keys passed in and returned are relative to the configured base prefix.
type Store interface {
	Put(ctx context.Context, key string, body []byte, public bool) error
	Get(ctx context.Context, key string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]string, error)
	Delete(ctx context.Context, key string) error
	// Sign issues a capability URL authorizing method on key for ttl.
	Sign(key, method string, ttl time.Duration) (string, error)
}

func JoinKey(basePrefix, key string) string {
	basePrefix = strings.Trim(strings.TrimSpace(basePrefix), "/")
	key = strings.TrimLeft(strings.TrimSpace(key), "/")
	if basePrefix == "" {
		return key
	}
	if key == "" {
		return basePrefix
	}
	return basePrefix + "/" + key
}

func trimBase(basePrefix, fullKey string) string {
	basePrefix = strings.Trim(strings.TrimSpace(basePrefix), "/")
	if basePrefix == "" {
		return fullKey
	}
	return strings.TrimPrefix(fullKey, basePrefix+"/")
}

// PublicURL is the unauthenticated address of key under base.
func PublicURL(base, key string) string {
	parts := strings.Split(strings.TrimLeft(key, "/"), "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.TrimRight(base, "/") + "/" + strings.Join(parts, "/")
}

// PublicBaseURL derives where agents can read public objects from. An
// explicit override wins.
func PublicBaseURL(cfg Config, override string) (string, error) {
	if override = strings.TrimRight(strings.TrimSpace(override), "/"); override != "" {
		return override, nil
	}
	var base string
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "local":
		if cfg.LocalGatewayURL == "" {
			return "", errors.New("missing local gateway url")
		}
		base = strings.TrimRight(cfg.LocalGatewayURL, "/") + "/o"
	case "aliyun":
		u, err := url.Parse(cfg.Endpoint)
		if err != nil {
			return "", err
		}
		host := u.Host
		scheme := u.Scheme
		if host == "" {
			// Endpoints are commonly configured without a scheme.
			host = strings.TrimSpace(cfg.Endpoint)
			scheme = "https"
		}
		base = scheme + "://" + cfg.Bucket + "." + host
	default:
		return "", errors.New("unsupported OSS provider (set RELAY_OSS_PROVIDER=aliyun|local)")
	}
	if p := strings.Trim(cfg.BasePrefix, "/"); p != "" {
		base += "/" + p
	}
	return base, nil
}

func New(cfg Config) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "local":
		if strings.TrimSpace(cfg.LocalDir) == "" {
			return nil, errors.New("RELAY_OSS_LOCAL_DIR is required when RELAY_OSS_PROVIDER=local")
		}
		signer, err := localSigner(cfg)
		if err != nil {
			return nil, err
		}
		return NewLocalStore(cfg.LocalDir, cfg.BasePrefix, signer), nil
	case "aliyun":
		if cfg.Endpoint == "" || cfg.AccessKeyID == "" || cfg.AccessKeySecret == "" || cfg.Bucket == "" {
			return nil, errors.New("missing OSS config for aliyun provider")
		}
		return newAliyunStore(cfg)
	default:
		return nil, errors.New("unsupported OSS provider (set RELAY_OSS_PROVIDER=aliyun|local)")
	}
}

func localSigner(cfg Config) (Signer, error) {
	priv, err := ParsePrivateKey(cfg.LocalSigningKey)
	if err != nil {
		return Signer{}, err
	}
	if cfg.LocalGatewayURL == "" {
		return Signer{}, errors.New("missing local gateway url")
	}
	// Signs full keys, so the base prefix is not part of BaseURL.
	return Signer{BaseURL: strings.TrimRight(cfg.LocalGatewayURL, "/") + "/o", Key: priv}, nil
}
