package integration

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/valter-silva-au/knc/pkg/models"
)

type staticSettings models.GlobalSettings

func (s staticSettings) Settings() (models.GlobalSettings, error) { return models.GlobalSettings(s), nil }

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "operator",
		"exp": exp.Unix(),
	}).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}
	return tok
}

func hostProvider(env map[string]string, cfg models.HostConfig) *HostTokenProvider {
	p := NewHostTokenProvider(cfg, nil)
	p.getenv = func(k string) string { return env[k] }
	return p
}

var testHostConfig = models.HostConfig{AccessTokenEnv: "HOST_AT", RefreshTokenEnv: "HOST_RT"}

func TestTokenChain_HostTokenWinsOverSettings(t *testing.T) {
	host := hostProvider(map[string]string{"HOST_AT": "host-token"}, testHostConfig)
	local := NewSettingsTokenProvider(staticSettings{AuthToken: "local-token"})

	got, err := NewTokenChain(host, local, nil).Token(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "host-token" {
		t.Errorf("token = %q, want host-token", got)
	}
}

func TestTokenChain_FallsBackToSettings(t *testing.T) {
	host := hostProvider(map[string]string{}, testHostConfig)
	local := NewSettingsTokenProvider(staticSettings{AuthToken: "local-token"})

	got, err := NewTokenChain(host, local, nil).Token(context.Background())
	if err != nil || got != "local-token" {
		t.Errorf("Token = %q, %v; want local-token", got, err)
	}

	got, err = NewTokenChain(nil, local, nil).Token(context.Background())
	if err != nil || got != "local-token" {
		t.Errorf("standalone Token = %q, %v; want local-token", got, err)
	}

	got, err = NewTokenChain(nil, nil, nil).Token(context.Background())
	if err != nil || got != "" {
		t.Errorf("no providers Token = %q, %v; want empty", got, err)
	}
}

func TestTokenChain_ExpiredHostTokenRefreshes(t *testing.T) {
	expired := signedToken(t, time.Now().Add(-time.Hour))
	fresh := signedToken(t, time.Now().Add(time.Hour))
	host := hostProvider(map[string]string{"HOST_AT": expired, "HOST_RT": fresh}, testHostConfig)

	got, err := NewTokenChain(host, nil, nil).Token(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != fresh {
		t.Error("expected the refreshed token")
	}
	if codes := host.Expiries(); len(codes) != 1 || codes[0] != 401 {
		t.Errorf("expiries = %v, want [401]", codes)
	}
}

func TestTokenChain_ExpiredHostTokenWithoutRefresh(t *testing.T) {
	expired := signedToken(t, time.Now().Add(-time.Minute))
	host := hostProvider(map[string]string{"HOST_AT": expired}, testHostConfig)
	local := NewSettingsTokenProvider(staticSettings{AuthToken: "local-token"})

	_, err := NewTokenChain(host, local, nil).Token(context.Background())
	if !errors.Is(err, ErrTokenExpired) {
		t.Errorf("error = %v, want ErrTokenExpired", err)
	}
}

func TestTokenChain_NotifyExpiredReachesHost(t *testing.T) {
	host := hostProvider(map[string]string{"HOST_AT": "opaque"}, testHostConfig)
	chain := NewTokenChain(host, nil, nil)

	chain.NotifyExpired(401)
	if codes := host.Expiries(); len(codes) != 1 {
		t.Errorf("expiries = %v", codes)
	}
}

func TestHostTokenProvider_TokenFileWins(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.yaml")
	if err := os.WriteFile(path, []byte("access_token: from-file\nrefresh_token: r\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg := testHostConfig
	cfg.TokenFile = path
	host := hostProvider(map[string]string{"HOST_AT": "from-env"}, cfg)

	got, err := host.AccessToken(context.Background())
	if err != nil || got != "from-file" {
		t.Errorf("AccessToken = %q, %v; want from-file", got, err)
	}
	if !host.Present() {
		t.Error("Present = false")
	}
}

func TestHostTokenProvider_Logout(t *testing.T) {
	host := hostProvider(map[string]string{"HOST_AT": "tok"}, testHostConfig)
	if err := host.Logout(); err != nil {
		t.Fatalf("Logout error: %v", err)
	}
	if _, err := host.AccessToken(context.Background()); !errors.Is(err, ErrLoggedOut) {
		t.Errorf("AccessToken after logout error = %v", err)
	}

	local := NewSettingsTokenProvider(staticSettings{AuthToken: "local-token"})
	got, err := NewTokenChain(host, local, nil).Token(context.Background())
	if err != nil || got != "local-token" {
		t.Errorf("Token after host logout = %q, %v", got, err)
	}
}

func TestTokenExpired(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name  string
		token string
		want  bool
	}{
		{"opaque", "ory_at_abc", false},
		{"future", signedToken(t, now.Add(time.Hour)), false},
		{"past", signedToken(t, now.Add(-time.Hour)), true},
	}
	for _, tt := range tests {
		if got := tokenExpired(tt.token, now); got != tt.want {
			t.Errorf("%s: tokenExpired = %v, want %v", tt.name, got, tt.want)
		}
	}
}
