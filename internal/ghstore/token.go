// Manages GitHub credentials: static personal access tokens and GitHub App
// installation tokens with JWT generation and caching.

package ghstore

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenSource supplies the bearer token for API requests.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a personal access token. It can be swapped at runtime
// (token rotation without restart).
type StaticToken struct {
	mu    sync.RWMutex
	token string
}

// NewStaticToken wraps a personal access token.
func NewStaticToken(token string) *StaticToken {
	return &StaticToken{token: token}
}

// Token returns the current token.
func (s *StaticToken) Token(context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, nil
}

// Set replaces the token.
func (s *StaticToken) Set(token string) {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
}

// AppAuth authenticates as a GitHub App installation. It signs a short-lived
// app JWT with the App's private key and exchanges it for an installation
// access token, cached until close to expiry.
type AppAuth struct {
	appID          int64
	installationID int64
	privateKey     *rsa.PrivateKey
	baseURL        string
	httpClient     *http.Client

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

// NewAppAuth creates a GitHub App token source for one installation.
func NewAppAuth(appID, installationID int64, privateKey *rsa.PrivateKey) *AppAuth {
	return &AppAuth{
		appID:          appID,
		installationID: installationID,
		privateKey:     privateKey,
		baseURL:        defaultBaseURL,
		httpClient:     &http.Client{Timeout: 30 * time.Second},
	}
}

// generateJWT creates a signed app JWT, valid for 10 minutes per GitHub's
// requirements, with 60s of clock drift allowance.
func (a *AppAuth) generateJWT() (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		IssuedAt:  jwt.NewNumericDate(now.Add(-60 * time.Second)),
		ExpiresAt: jwt.NewNumericDate(now.Add(10 * time.Minute)),
		Issuer:    strconv.FormatInt(a.appID, 10),
	}
	return jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(a.privateKey)
}

// Token returns a valid installation access token, using the cache when it
// expires more than 5 minutes from now.
func (a *AppAuth) Token(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.token != "" && time.Until(a.expiresAt) > 5*time.Minute {
		return a.token, nil
	}

	jwtToken, err := a.generateJWT()
	if err != nil {
		return "", fmt.Errorf("generate app JWT: %w", err)
	}

	u := fmt.Sprintf("%s/app/installations/%d/access_tokens", a.baseURL, a.installationID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, http.NoBody)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+jwtToken)
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request installation token: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("GitHub API error %d: %s", resp.StatusCode, string(body))
	}

	var result struct {
		Token     string    `json:"token"`
		ExpiresAt time.Time `json:"expires_at"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}

	a.token = result.Token
	a.expiresAt = result.ExpiresAt
	return a.token, nil
}
