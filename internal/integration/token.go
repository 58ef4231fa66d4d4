package integration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/valter-silva-au/knc/internal/core"
	"github.com/valter-silva-au/knc/pkg/models"
	"gopkg.in/yaml.v3"
)

var (
	// ErrLoggedOut is returned by a provider after Logout.
	ErrLoggedOut = errors.New("token provider logged out")

	// ErrTokenExpired is returned when the host token is expired and a
	// refresh did not produce a usable one.
	ErrTokenExpired = errors.New("host access token expired")
)

// TokenProvider is the capability an embedding host (or the local settings)
// offers for platform authentication.
type TokenProvider interface {
	AccessToken(ctx context.Context) (string, error)
	RefreshToken(ctx context.Context) (string, error)
	OnTokenExpired(code int)
	Logout() error
}

// hostTokenFile is the shape of the token file a host may hand over.
type hostTokenFile struct {
	AccessToken  string `yaml:"access_token"`
	RefreshToken string `yaml:"refresh_token"`
}

// HostTokenProvider reads tokens handed over by an embedding host through
// environment variables or a token file. The file wins when both are set.
type HostTokenProvider struct {
	cfg    models.HostConfig
	getenv func(string) string
	logger *slog.Logger

	mu        sync.Mutex
	loggedOut bool
	expiries  []int
}

// NewHostTokenProvider creates a HostTokenProvider for cfg.
func NewHostTokenProvider(cfg models.HostConfig, logger *slog.Logger) *HostTokenProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &HostTokenProvider{cfg: cfg, getenv: os.Getenv, logger: logger}
}

// Present reports whether the host handed over an access token.
func (p *HostTokenProvider) Present() bool {
	tokens, err := p.read()
	return err == nil && tokens.AccessToken != ""
}

func (p *HostTokenProvider) read() (hostTokenFile, error) {
	var out hostTokenFile
	if p.cfg.TokenFile != "" {
		data, err := os.ReadFile(p.cfg.TokenFile)
		if err == nil {
			if err := yaml.Unmarshal(data, &out); err != nil {
				return out, fmt.Errorf("parsing host token file: %w", err)
			}
			return out, nil
		}
		if !os.IsNotExist(err) {
			return out, fmt.Errorf("reading host token file: %w", err)
		}
	}
	if p.cfg.AccessTokenEnv != "" {
		out.AccessToken = strings.TrimSpace(p.getenv(p.cfg.AccessTokenEnv))
	}
	if p.cfg.RefreshTokenEnv != "" {
		out.RefreshToken = strings.TrimSpace(p.getenv(p.cfg.RefreshTokenEnv))
	}
	return out, nil
}

func (p *HostTokenProvider) AccessToken(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.loggedOut {
		return "", ErrLoggedOut
	}
	tokens, err := p.read()
	if err != nil {
		return "", err
	}
	return tokens.AccessToken, nil
}

// RefreshToken re-reads the host's hand-over and returns the refresh token
// in place of the access token when the host only supplied that.
func (p *HostTokenProvider) RefreshToken(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.loggedOut {
		return "", ErrLoggedOut
	}
	tokens, err := p.read()
	if err != nil {
		return "", err
	}
	if tokens.AccessToken != "" && !tokenExpired(tokens.AccessToken, time.Now()) {
		return tokens.AccessToken, nil
	}
	return tokens.RefreshToken, nil
}

func (p *HostTokenProvider) OnTokenExpired(code int) {
	p.mu.Lock()
	p.expiries = append(p.expiries, code)
	p.mu.Unlock()
	p.logger.Warn("host token rejected", "code", code)
}

// Expiries returns the codes passed to OnTokenExpired so far.
func (p *HostTokenProvider) Expiries() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]int{}, p.expiries...)
}

func (p *HostTokenProvider) Logout() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.loggedOut = true
	return nil
}

// SettingsTokenProvider serves the auth token stored in operator settings.
type SettingsTokenProvider struct {
	settings core.SettingsProvider
}

// NewSettingsTokenProvider creates a provider reading from settings.
func NewSettingsTokenProvider(settings core.SettingsProvider) *SettingsTokenProvider {
	return &SettingsTokenProvider{settings: settings}
}

func (p *SettingsTokenProvider) AccessToken(context.Context) (string, error) {
	s, err := p.settings.Settings()
	if err != nil {
		return "", fmt.Errorf("loading settings token: %w", err)
	}
	return s.AuthToken, nil
}

func (p *SettingsTokenProvider) RefreshToken(ctx context.Context) (string, error) {
	return p.AccessToken(ctx)
}

func (p *SettingsTokenProvider) OnTokenExpired(int) {}

func (p *SettingsTokenProvider) Logout() error { return nil }

// TokenChain resolves the bearer token for platform calls. A token from the
// host provider always wins over the locally configured one. It implements
// core.TokenSource.
type TokenChain struct {
	host   TokenProvider
	local  TokenProvider
	now    func() time.Time
	logger *slog.Logger
}

// NewTokenChain creates a chain. host may be nil for standalone use.
func NewTokenChain(host, local TokenProvider, logger *slog.Logger) *TokenChain {
	if logger == nil {
		logger = slog.Default()
	}
	return &TokenChain{host: host, local: local, now: time.Now, logger: logger}
}

var _ core.TokenSource = (*TokenChain)(nil)

func (c *TokenChain) Token(ctx context.Context) (string, error) {
	if c.host != nil {
		token, err := c.host.AccessToken(ctx)
		if err != nil && !errors.Is(err, ErrLoggedOut) {
			return "", fmt.Errorf("reading host token: %w", err)
		}
		if token != "" {
			if !tokenExpired(token, c.now()) {
				return token, nil
			}
			c.host.OnTokenExpired(401)
			refreshed, err := c.host.RefreshToken(ctx)
			if err == nil && refreshed != "" && !tokenExpired(refreshed, c.now()) {
				c.logger.Debug("host token refreshed")
				return refreshed, nil
			}
			return "", ErrTokenExpired
		}
	}
	if c.local == nil {
		return "", nil
	}
	return c.local.AccessToken(ctx)
}

// NotifyExpired tells the host the platform rejected its token.
func (c *TokenChain) NotifyExpired(code int) {
	if c.host != nil {
		c.host.OnTokenExpired(code)
	}
}

// tokenExpired reports whether token is a JWT whose exp claim is in the
// past. The signature is not verified; opaque tokens never expire here.
func tokenExpired(token string, now time.Time) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return !now.Before(exp.Time)
}
