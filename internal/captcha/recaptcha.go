// Package captcha scores requests with Google reCAPTCHA v3.
package captcha

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/kethan1/Blogger101-website/internal/apperr"
)

const DefaultVerifyURL = "https://www.google.com/recaptcha/api/siteverify"

type Recaptcha struct {
	secret    string
	verifyURL string
	client    *http.Client
}

func NewRecaptcha(secret, verifyURL string, timeout time.Duration) *Recaptcha {
	if verifyURL == "" {
		verifyURL = DefaultVerifyURL
	}
	return &Recaptcha{
		secret:    secret,
		verifyURL: verifyURL,
		client:    &http.Client{Timeout: timeout},
	}
}

type verifyResponse struct {
	Success    bool     `json:"success"`
	Score      float64  `json:"score"`
	Action     string   `json:"action"`
	Hostname   string   `json:"hostname"`
	ErrorCodes []string `json:"error-codes"`
}

// Score returns the bot-likelihood score in [0, 1], higher meaning more
// human. A token the provider rejects scores 0.
func (r *Recaptcha) Score(ctx context.Context, token, remoteIP string) (float64, error) {
	form := url.Values{
		"secret":   {r.secret},
		"response": {token},
	}
	if remoteIP != "" {
		form.Set("remoteip", remoteIP)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.verifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		return 0, fmt.Errorf("build siteverify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := r.client.Do(req)
	if err != nil {
		return 0, apperr.Upstream("recaptcha", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, apperr.Upstream("recaptcha", fmt.Errorf("siteverify status %d", resp.StatusCode))
	}

	var body verifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, apperr.Upstream("recaptcha", fmt.Errorf("decode siteverify: %w", err))
	}
	if !body.Success {
		log.Debug().Strs("error_codes", body.ErrorCodes).Msg("captcha: token rejected")
		return 0, nil
	}
	return body.Score, nil
}
