// internal/auth/auth.go
package auth

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// Modes for authenticating load traffic against the target.
const (
	ModeNone   = "none"
	ModeBearer = "bearer"
	ModeJWT    = "jwt"
	ModeOAuth2 = "oauth2"
)

// Config selects how generated requests authenticate against the target.
type Config struct {
	Mode        string       `json:"mode" yaml:"mode"`
	BearerToken string       `json:"bearerToken,omitempty" yaml:"bearer_token,omitempty"`
	JWT         JWTConfig    `json:"jwt,omitempty" yaml:"jwt,omitempty"`
	OAuth2      OAuth2Config `json:"oauth2,omitempty" yaml:"oauth2,omitempty"`
}

// JWTConfig mints short-lived HS256 tokens from a shared secret.
type JWTConfig struct {
	Secret     string `json:"secret" yaml:"secret"`
	Issuer     string `json:"issuer" yaml:"issuer"`
	Subject    string `json:"subject" yaml:"subject"`
	TTLSeconds int    `json:"ttlSeconds" yaml:"ttl_seconds"`
}

// OAuth2Config drives the client credentials grant against a token endpoint.
type OAuth2Config struct {
	TokenURL     string   `json:"tokenUrl" yaml:"token_url"`
	ClientID     string   `json:"clientId" yaml:"client_id"`
	ClientSecret string   `json:"clientSecret" yaml:"client_secret"`
	Scopes       []string `json:"scopes,omitempty" yaml:"scopes,omitempty"`
}

// Validate checks that the selected mode has the fields it needs.
func (c Config) Validate() error {
	switch c.Mode {
	case "", ModeNone:
		return nil
	case ModeBearer:
		if c.BearerToken == "" {
			return fmt.Errorf("bearer mode requires a token")
		}
	case ModeJWT:
		if c.JWT.Secret == "" {
			return fmt.Errorf("jwt mode requires a signing secret")
		}
	case ModeOAuth2:
		if c.OAuth2.TokenURL == "" || c.OAuth2.ClientID == "" || c.OAuth2.ClientSecret == "" {
			return fmt.Errorf("oauth2 mode requires token url, client id and client secret")
		}
	default:
		return fmt.Errorf("unknown auth mode %q", c.Mode)
	}
	return nil
}

// Client wraps base so every request it sends carries the configured
// credentials. A nil base falls back to http.DefaultClient settings.
func (c Config) Client(ctx context.Context, base *http.Client) (*http.Client, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if base == nil {
		base = &http.Client{}
	}

	switch c.Mode {
	case "", ModeNone:
		return base, nil

	case ModeBearer:
		return wrapTransport(base, &staticToken{token: c.BearerToken}), nil

	case ModeJWT:
		ttl := time.Duration(c.JWT.TTLSeconds) * time.Second
		if ttl <= 0 {
			ttl = 5 * time.Minute
		}
		return wrapTransport(base, &jwtMinter{cfg: c.JWT, ttl: ttl}), nil

	case ModeOAuth2:
		cc := clientcredentials.Config{
			ClientID:     c.OAuth2.ClientID,
			ClientSecret: c.OAuth2.ClientSecret,
			TokenURL:     c.OAuth2.TokenURL,
			Scopes:       c.OAuth2.Scopes,
		}
		// Token fetches reuse the caller's client, load requests get
		// the oauth2 transport stacked on top of it.
		ctx = context.WithValue(ctx, oauth2.HTTPClient, base)
		authed := cc.Client(ctx)
		authed.Timeout = base.Timeout
		return authed, nil
	}

	return nil, fmt.Errorf("unknown auth mode %q", c.Mode)
}

// tokenSource yields the current Authorization bearer value.
type tokenSource interface {
	Token() (string, error)
}

type staticToken struct {
	token string
}

func (s *staticToken) Token() (string, error) { return s.token, nil }

// jwtMinter signs HS256 tokens on demand and re-mints shortly before
// they expire so long runs never send a stale token.
type jwtMinter struct {
	cfg JWTConfig
	ttl time.Duration

	mu      sync.Mutex
	current string
	expires time.Time
}

func (m *jwtMinter) Token() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != "" && time.Until(m.expires) > m.ttl/10 {
		return m.current, nil
	}

	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    m.cfg.Issuer,
		Subject:   m.cfg.Subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(m.cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}

	m.current = signed
	m.expires = now.Add(m.ttl)
	return signed, nil
}

// headerTransport injects Authorization into each outgoing request.
type headerTransport struct {
	next   http.RoundTripper
	source tokenSource
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	token, err := t.source.Token()
	if err != nil {
		return nil, fmt.Errorf("fetch auth token: %w", err)
	}

	clone := req.Clone(req.Context())
	clone.Header.Set("Authorization", "Bearer "+token)
	return t.next.RoundTrip(clone)
}

func wrapTransport(base *http.Client, source tokenSource) *http.Client {
	next := base.Transport
	if next == nil {
		next = http.DefaultTransport
	}
	return &http.Client{
		Transport:     &headerTransport{next: next, source: source},
		Timeout:       base.Timeout,
		CheckRedirect: base.CheckRedirect,
		Jar:           base.Jar,
	}
}
