// Package hyperliquid is the REST client for the Hyperliquid perpetuals API
// and the per-account ExchangeGateway built on top of it.
package hyperliquid

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/BeerCodeIndustry/hyperliquid/internal/crypto"
	"github.com/BeerCodeIndustry/hyperliquid/internal/domain"
)

const (
	MainnetURL = "https://api.hyperliquid.xyz"
	TestnetURL = "https://api.hyperliquid-testnet.xyz"

	infoAttempts  = 3
	infoRetryWait = 200 * time.Millisecond
	infoRetryMax  = 2 * time.Second
)

// ClientConfig configures one Client.
type ClientConfig struct {
	BaseURL string
	Timeout time.Duration
	Mainnet bool
	// Proxy routes every request of this client; nil connects directly.
	Proxy *domain.ProxyConfig
	// Vault is the optional vault address actions are performed for.
	Vault string
}

// Client talks to /info and, when a signer is set, to /exchange. Each
// account gets its own Client so that its proxy and connection pool are not
// shared.
type Client struct {
	info     *resty.Client // retried reads
	exchange *resty.Client // signed actions, never retried
	signer *crypto.Signer
	vault  string
	logger *slog.Logger

	nonceMu   sync.Mutex
	lastNonce uint64
}

// NewClient creates a client. signer may be nil for read-only use.
func NewClient(cfg ClientConfig, signer *crypto.Signer, logger *slog.Logger) *Client {
	base := strings.TrimSuffix(cfg.BaseURL, "/")
	if base == "" {
		base = MainnetURL
		if !cfg.Mainnet {
			base = TestnetURL
		}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	log := logger.With(slog.String("component", "hyperliquid"))
	info := newRestClient(base, timeout, cfg.Proxy, log).
		SetRetryCount(infoAttempts - 1).
		SetRetryWaitTime(infoRetryWait).
		SetRetryMaxWaitTime(infoRetryMax).
		AddRetryCondition(retryableInfo).
		AddRetryHook(func(resp *resty.Response, err error) {
			var attrs []any
			if resp != nil && resp.Request != nil {
				attrs = append(attrs, slog.Int("attempt", resp.Request.Attempt))
			}
			if err != nil {
				attrs = append(attrs, slog.String("error", err.Error()))
			} else if resp != nil {
				attrs = append(attrs, slog.Int("status", resp.StatusCode()))
			}
			log.Debug("info request failed, retrying", attrs...)
		})

	return &Client{
		info:     info,
		exchange: newRestClient(base, timeout, cfg.Proxy, log),
		signer:   signer,
		vault:    cfg.Vault,
		logger:   log,
	}
}

func newRestClient(base string, timeout time.Duration, proxy *domain.ProxyConfig, log *slog.Logger) *resty.Client {
	rc := resty.New().
		SetBaseURL(base).
		SetTimeout(timeout).
		SetLogger(restyLogger{log}).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if proxy != nil && !proxy.IsZero() {
		rc.SetProxy(proxy.URL().String())
	}
	return rc
}

// retryableInfo retries reads on transport errors, 5xx and 429.
func retryableInfo(resp *resty.Response, err error) bool {
	if err != nil {
		return true
	}
	return resp.StatusCode() >= 500 || resp.StatusCode() == http.StatusTooManyRequests
}

// restyLogger routes resty's own messages to slog.
type restyLogger struct{ l *slog.Logger }

func (r restyLogger) Errorf(format string, v ...any) { r.l.Warn(fmt.Sprintf(format, v...)) }
func (r restyLogger) Warnf(format string, v ...any)  { r.l.Debug(fmt.Sprintf(format, v...)) }
func (r restyLogger) Debugf(format string, v ...any) { r.l.Debug(fmt.Sprintf(format, v...)) }

// Close releases idle connections.
func (c *Client) Close() {
	c.info.GetClient().CloseIdleConnections()
	c.exchange.GetClient().CloseIdleConnections()
}

// postInfo sends a read request to /info and decodes the result into out.
// Reads are idempotent and retried by the info client.
func (c *Client) postInfo(ctx context.Context, req any, out any) error {
	resp, err := c.info.R().SetContext(ctx).SetBody(req).Post("/info")
	if err != nil {
		return err
	}
	if err := checkHTTPStatus(resp.StatusCode(), resp.Body()); err != nil {
		return err
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("hyperliquid: decode info response: %w", err)
	}
	return nil
}

// postExchange signs and submits action. It is never retried: a repeated
// order submission is not idempotent.
func (c *Client) postExchange(ctx context.Context, action any) (exchangeResponse, error) {
	if c.signer == nil {
		return exchangeResponse{}, errors.New("hyperliquid: client has no signer")
	}

	nonce := c.nextNonce()
	sig, err := c.signer.SignL1Action(action, c.vault, nonce)
	if err != nil {
		return exchangeResponse{}, fmt.Errorf("%w: %v", domain.ErrSigningFailed, err)
	}

	body := exchangeRequest{Action: action, Nonce: nonce, Signature: sig}
	if c.vault != "" {
		v := c.vault
		body.VaultAddress = &v
	}

	resp, err := c.exchange.R().SetContext(ctx).SetBody(body).Post("/exchange")
	if err != nil {
		return exchangeResponse{}, err
	}
	if err := checkHTTPStatus(resp.StatusCode(), resp.Body()); err != nil {
		return exchangeResponse{}, err
	}

	var out exchangeResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return exchangeResponse{}, fmt.Errorf("hyperliquid: decode exchange response: %w", err)
	}
	if out.Status != "ok" {
		var reason string
		if json.Unmarshal(out.Response, &reason) != nil {
			reason = string(out.Response)
		}
		return out, fmt.Errorf("hyperliquid: action rejected: %s", reason)
	}
	return out, nil
}

// nextNonce returns a millisecond timestamp that strictly increases per
// client.
func (c *Client) nextNonce() uint64 {
	c.nonceMu.Lock()
	defer c.nonceMu.Unlock()

	n := uint64(time.Now().UnixMilli())
	if n <= c.lastNonce {
		n = c.lastNonce + 1
	}
	c.lastNonce = n
	return n
}

// checkHTTPStatus maps HTTP status codes to domain errors.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	bodyStr := string(body)
	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, bodyStr)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, bodyStr)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, bodyStr)
	}
}
