// Package broker implements the Zerodha Kite Connect v3 REST client: a
// rate-limited, retrying HTTP client covering session lifecycle, account
// and order queries, and order placement. Every request carries the
// mandatory X-Kite-Version header and, once logged in, the bearer-style
// Authorization header Kite expects.
package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"

	"hedgexd/internal/config"
	"hedgexd/internal/errs"
)

// Client is the Kite Connect v3 REST API client.
type Client struct {
	http   *resty.Client
	sess   *session
	gate   *gate
	dryRun bool
	logger *slog.Logger
}

// NewClient builds a client from config. The access token starts empty;
// callers must complete the login handshake via ExchangeRequestToken (or
// by restoring a previously sealed token) before placing orders.
func NewClient(cfg config.BrokerConfig, dryRun bool, logger *slog.Logger) *Client {
	httpClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.RequestTimeout).
		SetHeader("X-Kite-Version", "3").
		SetHeader("Content-Type", "application/x-www-form-urlencoded")

	return &Client{
		http:   httpClient,
		sess:   &session{apiKey: cfg.APIKey},
		gate:   newGate(cfg.MinRequestInterval),
		dryRun: dryRun,
		logger: logger,
	}
}

// envelope is Kite's uniform response shape.
type envelope struct {
	Status       string          `json:"status"`
	Data         json.RawMessage `json:"data"`
	ErrorType    string          `json:"error_type"`
	ErrorMessage string          `json:"error_message"`
}

// do executes one REST call with the rate gate, retry/backoff, and error
// mapping applied. method/path/body follow resty conventions; result
// receives the decoded `data` field on success.
func (c *Client) do(ctx context.Context, method, path string, body any, result any) error {
	var lastErr error

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			delay := backoffDelay(attempt - 1)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		if err := c.gate.Wait(ctx); err != nil {
			return err
		}

		req := c.http.R().SetContext(ctx).SetHeader("Authorization", c.authHeader())
		if body != nil {
			req = req.SetFormData(toFormData(body))
		}

		var env envelope
		resp, err := req.SetResult(&env).Execute(method, path)
		if err != nil {
			lastErr = errs.Wrap(errs.ExternalService, "broker request failed", err)
			continue
		}

		if resp.StatusCode() >= 400 || env.Status == "error" {
			mapped := mapErrorType(env.ErrorType, env.ErrorMessage)
			if retryableStatus(resp.StatusCode()) || errs.Is(mapped, errs.RateLimit) {
				lastErr = mapped
				continue
			}
			return mapped
		}

		if result != nil && len(env.Data) > 0 {
			if err := json.Unmarshal(env.Data, result); err != nil {
				return errs.Wrap(errs.DataIntegrity, "decode broker response", err)
			}
		}
		return nil
	}

	return lastErr
}

func (c *Client) get(path string, result any) error {
	return c.do(context.Background(), "GET", path, nil, result)
}

func (c *Client) getCtx(ctx context.Context, path string, result any) error {
	return c.do(ctx, "GET", path, nil, result)
}

func (c *Client) post(path string, body any, result any) error {
	return c.do(context.Background(), "POST", path, body, result)
}

func (c *Client) put(path string, body any, result any) error {
	return c.do(context.Background(), "PUT", path, body, result)
}

func (c *Client) delete(path string, result any) error {
	return c.do(context.Background(), "DELETE", path, nil, result)
}

// toFormData flattens a map[string]string body for Kite's
// application/x-www-form-urlencoded requests.
func toFormData(body any) map[string]string {
	m, ok := body.(map[string]string)
	if ok {
		return m
	}
	out := map[string]string{}
	b, err := json.Marshal(body)
	if err != nil {
		return out
	}
	var generic map[string]any
	if err := json.Unmarshal(b, &generic); err != nil {
		return out
	}
	for k, v := range generic {
		out[k] = fmt.Sprintf("%v", v)
	}
	return out
}
