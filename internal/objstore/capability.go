package objstore

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cyberphone/json-canonicalization/go/src/webpki.org/jsoncanonicalizer"
)

// Query parameters carried by a locally signed capability URL.
const (
	QueryMethod    = "method"
	QueryExpires   = "expires"
	QuerySignature = "signature"
)

var (
	ErrCapabilityExpired   = errors.New("capability expired")
	ErrCapabilityMethod    = errors.New("capability not valid for method")
	ErrCapabilitySignature = errors.New("capability signature invalid")
	ErrMissingSigningKey   = errors.New("missing signing key")
)

// Claims is what a local capability URL authorizes: one method on one key
// until Expires (unix seconds).
type Claims struct {
	Key     string `json:"key"`
	Method  string `json:"method"`
	Expires int64  `json:"expires"`
}

func (c Claims) ValidateBasic() error {
	if c.Key == "" {
		return errors.New("missing key")
	}
	if c.Method == "" {
		return errors.New("missing method")
	}
	if c.Expires <= 0 {
		return errors.New("missing expires")
	}
	return nil
}

func (c Claims) canonical() ([]byte, error) {
	raw, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	return jsoncanonicalizer.Transform(raw)
}

// Signer issues capability URLs rooted at BaseURL (the gateway's object
// route, e.g. http://127.0.0.1:9000/o).
type Signer struct {
	BaseURL string
	Key     ed25519.PrivateKey
	Now     func() time.Time
}

func (s Signer) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s Signer) Sign(key, method string, ttl time.Duration) (string, error) {
	if len(s.Key) != ed25519.PrivateKeySize {
		return "", ErrMissingSigningKey
	}
	c := Claims{
		Key:     key,
		Method:  strings.ToUpper(method),
		Expires: s.now().Add(ttl).Unix(),
	}
	if err := c.ValidateBasic(); err != nil {
		return "", err
	}
	msg, err := c.canonical()
	if err != nil {
		return "", err
	}
	sig := ed25519.Sign(s.Key, msg)

	q := url.Values{}
	q.Set(QueryMethod, c.Method)
	q.Set(QueryExpires, strconv.FormatInt(c.Expires, 10))
	q.Set(QuerySignature, base64.RawURLEncoding.EncodeToString(sig))
	return PublicURL(s.BaseURL, key) + "?" + q.Encode(), nil
}

type Verifier struct {
	Key ed25519.PublicKey
	Now func() time.Time
}

// Verify checks that query authorizes method on key.
func (v Verifier) Verify(key, method string, query url.Values) error {
	if len(v.Key) != ed25519.PublicKeySize {
		return fmt.Errorf("invalid ed25519 public key length: %d", len(v.Key))
	}
	expires, err := strconv.ParseInt(query.Get(QueryExpires), 10, 64)
	if err != nil {
		return ErrCapabilitySignature
	}
	sig, err := base64.RawURLEncoding.DecodeString(query.Get(QuerySignature))
	if err != nil {
		return ErrCapabilitySignature
	}
	c := Claims{Key: key, Method: query.Get(QueryMethod), Expires: expires}
	if err := c.ValidateBasic(); err != nil {
		return ErrCapabilitySignature
	}
	msg, err := c.canonical()
	if err != nil {
		return err
	}
	if !ed25519.Verify(v.Key, msg, sig) {
		return ErrCapabilitySignature
	}
	if !strings.EqualFold(c.Method, method) {
		return ErrCapabilityMethod
	}
	now := time.Now()
	if v.Now != nil {
		now = v.Now()
	}
	if now.Unix() >= c.Expires {
		return ErrCapabilityExpired
	}
	return nil
}

// ParseCapability splits a capability URL into its claims without verifying
// the signature. baseURL is stripped from the path to recover the key.
func ParseCapability(rawURL, baseURL string) (Claims, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return Claims{}, err
	}
	q := u.Query()
	expires, err := strconv.ParseInt(q.Get(QueryExpires), 10, 64)
	if err != nil {
		return Claims{}, fmt.Errorf("invalid %s: %w", QueryExpires, err)
	}
	path := strings.TrimPrefix(u.Path, "/")
	if baseURL != "" {
		if b, err := url.Parse(baseURL); err == nil {
			path = strings.TrimPrefix(path, strings.Trim(b.Path, "/"))
		}
	}
	c := Claims{
		Key:     strings.TrimPrefix(path, "/"),
		Method:  q.Get(QueryMethod),
		Expires: expires,
	}
	return c, c.ValidateBasic()
}

func GenerateSigningKey() (publicKey ed25519.PublicKey, privateKey ed25519.PrivateKey, err error) {
	return ed25519.GenerateKey(rand.Reader)
}

func EncodeKey(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

func ParsePrivateKey(s string) (ed25519.PrivateKey, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, errors.New("empty private key")
	}
	if strings.HasPrefix(strings.ToLower(s), "ed25519:") {
		s = strings.TrimSpace(s[len("ed25519:"):])
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, err
	}
	if len(b) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("invalid ed25519 private key length: %d", len(b))
	}
	return ed25519.PrivateKey(b), nil
}

func ParsePublicKey(s string) (ed25519.PublicKey, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, errors.New("empty public key")
	}
	if strings.HasPrefix(strings.ToLower(s), "ed25519:") {
		s = strings.TrimSpace(s[len("ed25519:"):])
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, err
	}
	if len(b) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("invalid ed25519 public key length: %d", len(b))
	}
	return ed25519.PublicKey(b), nil
}
