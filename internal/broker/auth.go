package broker

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"sync"
)

// session holds the broker access token under a readers-writer lock;
// writers only run during login/refresh, per the concurrency model.
type session struct {
	mu          sync.RWMutex
	apiKey      string
	accessToken string
}

func (s *session) get() (apiKey, accessToken string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.apiKey, s.accessToken
}

func (s *session) set(accessToken string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accessToken = accessToken
}

// SessionLoginURL returns the Kite Connect login URL a user visits to
// authorize this app and obtain a request_token via redirect.
func (c *Client) SessionLoginURL() string {
	return fmt.Sprintf("https://kite.zerodha.com/connect/login?v=3&api_key=%s", c.sess.apiKey)
}

// checksum computes the session exchange checksum:
// base64(HMAC-SHA256(apiSecret, apiKey||requestToken)).
func checksum(apiKey, requestToken, apiSecret string) string {
	mac := hmac.New(sha256.New, []byte(apiSecret))
	mac.Write([]byte(apiKey + requestToken))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

type sessionResponse struct {
	AccessToken string `json:"access_token"`
	UserID      string `json:"user_id"`
}

// ExchangeRequestToken completes the login handshake: exchanges a
// request_token (obtained from the login redirect) for an access_token,
// and sets it on the client for subsequent authenticated calls.
func (c *Client) ExchangeRequestToken(requestToken, apiSecret string) (string, error) {
	sum := checksum(c.sess.apiKey, requestToken, apiSecret)

	var result sessionResponse
	err := c.post("/session/token", map[string]string{
		"api_key":       c.sess.apiKey,
		"request_token": requestToken,
		"checksum":      sum,
	}, &result)
	if err != nil {
		return "", err
	}

	c.sess.set(result.AccessToken)
	return result.AccessToken, nil
}

// InvalidateSession logs the current access token out of Kite.
func (c *Client) InvalidateSession() error {
	_, accessToken := c.sess.get()
	err := c.delete(fmt.Sprintf("/session/token?api_key=%s&access_token=%s", c.sess.apiKey, accessToken), nil)
	c.sess.set("")
	return err
}

// authHeader builds the Authorization header value for authenticated
// requests. Requests made before ExchangeRequestToken succeeds will be
// rejected by Kite with a TokenException, mapped to errs.Authentication.
func (c *Client) authHeader() string {
	apiKey, accessToken := c.sess.get()
	return fmt.Sprintf("token %s:%s", apiKey, accessToken)
}
