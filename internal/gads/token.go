package gads

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ignite/gads-reporter/internal/diaglog"
	"github.com/ignite/gads-reporter/internal/pkg/logger"
)

// tokenSafetyMargin is subtracted from expires_in so a token is never served
// within 5 minutes of its real expiry.
const tokenSafetyMargin = 300

// tokenCacheKey namespaces the cached token per credential pair, so changing
// the client ID or refresh token never serves a stale token.
func (c *Client) tokenCacheKey() string {
	sum := sha256.Sum256([]byte(c.creds.ClientID + "|" + c.creds.RefreshToken))
	return "access_token:" + hex.EncodeToString(sum[:8])
}

// AccessToken returns a valid access token, serving from the cache when an
// unexpired entry exists and refreshing otherwise. Returns "" on failure;
// LastError/LastDebug carry the reason.
func (c *Client) AccessToken(ctx context.Context) string {
	if token, ok, err := c.cache.Get(ctx, c.tokenCacheKey()); err == nil && ok {
		return token
	} else if err != nil {
		logger.Warn("gads: token cache read failed, refreshing", "error", err)
	}
	return c.RefreshAccessToken(ctx)
}

// RefreshAccessToken exchanges the refresh token for a new access token and
// caches it with TTL = expires_in - 300s. Always hits the token endpoint;
// use AccessToken for cache-first reads.
func (c *Client) RefreshAccessToken(ctx context.Context) string {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("client_id", c.creds.ClientID)
	form.Set("client_secret", c.creds.ClientSecret)
	form.Set("refresh_token", c.creds.RefreshToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		c.recordTokenFailure(fmt.Sprintf("creating token request: %v", err), "")
		return ""
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.recordTokenFailure(fmt.Sprintf("token endpoint unreachable: %v", err), "")
		return ""
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.recordTokenFailure(fmt.Sprintf("reading token response: %v", err),
			fmt.Sprintf("HTTP %d", resp.StatusCode))
		return ""
	}

	debug := fmt.Sprintf("HTTP %d: %s", resp.StatusCode, string(body))

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		c.recordTokenFailure("token response is not valid JSON", debug)
		return ""
	}

	if tr.AccessToken == "" || tr.ExpiresIn == 0 {
		msg := tr.ErrorDescription
		if msg == "" {
			msg = tr.Error
		}
		if msg == "" {
			msg = "token response missing access_token"
		}
		c.recordTokenFailure(msg, debug)
		return ""
	}

	ttl := time.Duration(tr.ExpiresIn-tokenSafetyMargin) * time.Second
	if ttl > 0 {
		if err := c.cache.Set(ctx, c.tokenCacheKey(), tr.AccessToken, ttl); err != nil {
			logger.Warn("gads: token cache write failed", "error", err)
		}
	}

	c.lastError = ""
	c.lastDebug = ""
	return tr.AccessToken
}

func (c *Client) recordTokenFailure(msg, debug string) {
	c.lastError = msg
	c.lastDebug = debug
	if c.dlog != nil {
		c.dlog.Error(fmt.Sprintf("token refresh failed for client %s: %s",
			diaglog.Mask(c.creds.ClientID), msg))
	}
	logger.Error("gads: token refresh failed",
		"client_id", c.creds.ClientID, "error", msg)
}
