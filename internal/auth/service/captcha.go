package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// TurnstileVerifyURL is Cloudflare's siteverify endpoint.
const TurnstileVerifyURL = "https://challenges.cloudflare.com/turnstile/v0/siteverify"

// CaptchaVerifier checks a CAPTCHA response token.
type CaptchaVerifier interface {
	Verify(ctx context.Context, token, ip string) (bool, error)
}

// Turnstile verifies tokens against Cloudflare Turnstile.
type Turnstile struct {
	Secret     string
	VerifyURL  string
	HTTPClient *http.Client
}

func NewTurnstile(secret string) *Turnstile {
	return &Turnstile{
		Secret:     secret,
		VerifyURL:  TurnstileVerifyURL,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

type turnstileResponse struct {
	Success    bool     `json:"success"`
	ErrorCodes []string `json:"error-codes"`
}

func (t *Turnstile) Verify(ctx context.Context, token, ip string) (bool, error) {
	form := url.Values{
		"secret":   {t.Secret},
		"response": {token},
	}
	if ip != "" {
		form.Set("remoteip", ip)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.VerifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	client := t.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return false, fmt.Errorf("turnstile request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("turnstile: unexpected status %d", resp.StatusCode)
	}

	var out turnstileResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false, fmt.Errorf("turnstile decode: %w", err)
	}
	return out.Success, nil
}
