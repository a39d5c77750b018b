package broker

import (
	"encoding/json"
	"net/http"
	"testing"
)

func TestChecksumIsHMACSHA256Base64(t *testing.T) {
	t.Parallel()
	a := checksum("key1", "req1", "secret1")
	b := checksum("key1", "req1", "secret1")
	if a != b {
		t.Errorf("checksum not deterministic: %q != %q", a, b)
	}

	c := checksum("key1", "req1", "secret2")
	if a == c {
		t.Error("checksum collided across different secrets")
	}
}

func TestExchangeRequestTokenSetsAccessToken(t *testing.T) {
	t.Parallel()

	var gotChecksum string
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatalf("ParseForm: %v", err)
		}
		gotChecksum = r.FormValue("checksum")
		json.NewEncoder(w).Encode(map[string]any{
			"status": "success",
			"data":   map[string]string{"access_token": "new-access-token", "user_id": "AB1234"},
		})
	})
	c.sess.set("")

	token, err := c.ExchangeRequestToken("req-token", "api-secret")
	if err != nil {
		t.Fatalf("ExchangeRequestToken: %v", err)
	}
	if token != "new-access-token" {
		t.Errorf("token = %q, want new-access-token", token)
	}

	want := checksum("test-key", "req-token", "api-secret")
	if gotChecksum != want {
		t.Errorf("checksum sent = %q, want %q", gotChecksum, want)
	}

	_, gotToken := c.sess.get()
	if gotToken != "new-access-token" {
		t.Errorf("session access token = %q, want new-access-token", gotToken)
	}
}

func TestSessionLoginURLIncludesAPIKey(t *testing.T) {
	t.Parallel()
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
	url := c.SessionLoginURL()
	if url != "https://kite.zerodha.com/connect/login?v=3&api_key=test-key" {
		t.Errorf("SessionLoginURL() = %q", url)
	}
}
