package syncapi

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
)

// ExchangeCodeRequest is the browser OAuth code-exchange payload posted to
// the web app's token endpoint (distinct host from the sync API itself).
type ExchangeCodeRequest struct {
	Code         string `json:"code"`
	DeviceName   string `json:"device_name"`
	CodeVerifier string `json:"code_verifier,omitempty"`
	Platform     string `json:"platform"`
	OSVersion    string `json:"os_version"`
	MachineID    string `json:"machine_id"`
	AgentVersion string `json:"agent_version"`
}

// ExchangeCodeUser is the authenticated account returned alongside the token.
type ExchangeCodeUser struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// ExchangeCodeResponse is the decoded token-exchange payload.
type ExchangeCodeResponse struct {
	AccessToken string           `json:"access_token"`
	User        ExchangeCodeUser `json:"user"`
}

// NewCodeVerifier generates an RFC 7636 PKCE code_verifier: 32 bytes of
// crypto/rand entropy, base64url-encoded without padding.
func NewCodeVerifier() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// CodeChallenge derives the S256 code_challenge for a given code_verifier.
func CodeChallenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// ExchangeCode trades a browser-flow authorization code for an access
// token. Not retried: 4xx responses are classified into user-facing errors
// by the caller via errors.As(err, *APIError).
func (c *Client) ExchangeCode(ctx context.Context, req ExchangeCodeRequest) (ExchangeCodeResponse, error) {
	var resp ExchangeCodeResponse
	err := c.doRequest(ctx, http.MethodPost, c.webBaseURL, "/api/v1/sync/auth/token", req, &resp)
	return resp, err
}
