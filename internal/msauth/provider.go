// Package msauth exchanges app credentials for Microsoft identity platform
// bearer tokens using the OAuth2 client-credentials grant.
package msauth

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
)

// expirySkew is subtracted from the token lifetime so callers never hold a
// token that expires mid-request.
const expirySkew = 60 * time.Second

// TokenProvider supplies bearer tokens for outbound Graph calls.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// Provider implements the client-credentials flow with an in-memory cache.
// The cached token is reused until expiry minus a safety skew.
type Provider struct {
	client   *resty.Client
	tenantID string
	clientID string
	secret   string

	mu     sync.Mutex
	token  string
	expiry time.Time

	now func() time.Time
}

// New creates a Provider against the given authority base URL
// (e.g. https://login.microsoftonline.com).
func New(baseURL, tenantID, clientID, secret string) *Provider {
	c := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(15 * time.Second)
	return &Provider{
		client:   c,
		tenantID: tenantID,
		clientID: clientID,
		secret:   secret,
		now:      time.Now,
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	Error       string `json:"error"`
	ErrorDesc   string `json:"error_description"`
}

// Token returns a cached token or fetches a fresh one.
func (p *Provider) Token(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.token != "" && p.now().Before(p.expiry) {
		return p.token, nil
	}

	var out tokenResponse
	resp, err := p.client.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"client_id":     p.clientID,
			"client_secret": p.secret,
			"scope":         "https://graph.microsoft.com/.default",
			"grant_type":    "client_credentials",
		}).
		SetResult(&out).
		SetError(&out).
		Post(fmt.Sprintf("/%s/oauth2/v2.0/token", p.tenantID))
	if err != nil {
		return "", fmt.Errorf("token request: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return "", fmt.Errorf("token request status %d: %s %s", resp.StatusCode(), out.Error, out.ErrorDesc)
	}
	if out.AccessToken == "" {
		return "", fmt.Errorf("token response missing access_token")
	}

	p.token = out.AccessToken
	p.expiry = p.now().Add(time.Duration(out.ExpiresIn)*time.Second - expirySkew)
	return p.token, nil
}

// Invalidate drops the cached token so the next call refetches.
func (p *Provider) Invalidate() {
	p.mu.Lock()
	p.token = ""
	p.expiry = time.Time{}
	p.mu.Unlock()
}
