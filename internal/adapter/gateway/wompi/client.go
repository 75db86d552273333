// Package wompi is the outbound client for the Wompi payment gateway. Amounts
// cross this boundary in cents; callers always see major units.
package wompi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"reseller-ledger/config"
	"reseller-ledger/internal/core/domain"
	"reseller-ledger/internal/core/ports"

	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"
)

const checkoutBaseURL = "https://checkout.wompi.co/l/"

// HTTPClient is satisfied by *http.Client.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client implements ports.PaymentGateway.
type Client struct {
	baseURL     string
	publicKey   string
	privateKey  string
	currency    string
	redirectURL string
	maxRetries  uint64
	backoff     time.Duration
	httpClient  HTTPClient
	log         zerolog.Logger
}

// NewClient builds a gateway client from config. httpClient may be nil.
func NewClient(cfg config.WompiConfig, httpClient HTTPClient, log zerolog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		publicKey:   cfg.PublicKey,
		privateKey:  cfg.PrivateKey,
		currency:    cfg.Currency,
		redirectURL: cfg.RedirectURL,
		maxRetries:  cfg.MaxRetries,
		backoff:     200 * time.Millisecond,
		httpClient:  httpClient,
		log:         log.With().Str("component", "wompi").Logger(),
	}
}

type paymentLinkBody struct {
	Name            string `json:"name"`
	Description     string `json:"description"`
	SingleUse       bool   `json:"single_use"`
	CollectShipping bool   `json:"collect_shipping"`
	Currency        string `json:"currency"`
	AmountInCents   int64  `json:"amount_in_cents"`
	RedirectURL     string `json:"redirect_url,omitempty"`
	SKU             string `json:"sku,omitempty"`
}

type transactionData struct {
	ID                string `json:"id"`
	Reference         string `json:"reference"`
	Status            string `json:"status"`
	PaymentMethodType string `json:"payment_method_type"`
	AmountInCents     int64  `json:"amount_in_cents"`
}

func (t transactionData) toPort() *ports.GatewayTransaction {
	return &ports.GatewayTransaction{
		ID:            t.ID,
		Reference:     t.Reference,
		Status:        t.Status,
		PaymentMethod: t.PaymentMethodType,
		Amount:        domain.FromCents(t.AmountInCents),
	}
}

// CreatePaymentLink creates a single-use checkout link. The order reference
// travels as the link SKU so payment_link events can be traced back.
// Not retried: a timeout may still have created the link.
func (c *Client) CreatePaymentLink(ctx context.Context, req ports.PaymentLinkRequest) (*ports.PaymentLink, error) {
	currency := req.Currency
	if currency == "" {
		currency = c.currency
	}
	redirect := req.RedirectURL
	if redirect == "" {
		redirect = c.redirectURL
	}
	body, err := json.Marshal(paymentLinkBody{
		Name:          req.Name,
		Description:   req.Description,
		SingleUse:     true,
		Currency:      currency,
		AmountInCents: domain.ToCents(req.Amount),
		RedirectURL:   redirect,
		SKU:           req.Reference,
	})
	if err != nil {
		return nil, fmt.Errorf("encode payment link: %w", err)
	}

	var out struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := c.send(ctx, http.MethodPost, "/payment_links", body, c.privateKey, &out); err != nil {
		return nil, fmt.Errorf("create payment link: %w", err)
	}
	if out.Data.ID == "" {
		return nil, errors.New("create payment link: gateway returned no id")
	}

	c.log.Info().Str("reference", req.Reference).Str("link_id", out.Data.ID).Msg("payment link created")
	return &ports.PaymentLink{ID: out.Data.ID, URL: checkoutBaseURL + out.Data.ID}, nil
}

// GetTransaction fetches one transaction by its gateway id.
func (c *Client) GetTransaction(ctx context.Context, transactionID string) (*ports.GatewayTransaction, error) {
	var out struct {
		Data transactionData `json:"data"`
	}
	path := "/transactions/" + url.PathEscape(transactionID)
	err := c.getWithRetry(ctx, path, c.publicKey, &out)
	if err != nil {
		return nil, fmt.Errorf("get transaction %s: %w", transactionID, err)
	}
	return out.Data.toPort(), nil
}

// FindTransactionByReference returns the latest transaction for a reference,
// or nil when the customer has not paid yet.
func (c *Client) FindTransactionByReference(ctx context.Context, reference string) (*ports.GatewayTransaction, error) {
	var out struct {
		Data []transactionData `json:"data"`
	}
	path := "/transactions?reference=" + url.QueryEscape(reference)
	if err := c.getWithRetry(ctx, path, c.privateKey, &out); err != nil {
		return nil, fmt.Errorf("find transaction by reference %s: %w", reference, err)
	}
	if len(out.Data) == 0 {
		return nil, nil
	}
	return out.Data[0].toPort(), nil
}

// getWithRetry retries reads on transport errors and 5xx/429 responses.
func (c *Client) getWithRetry(ctx context.Context, path, key string, out any) error {
	backoff := retry.WithMaxRetries(c.maxRetries, retry.NewExponential(c.backoff))
	attempt := 0
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		err := c.send(ctx, http.MethodGet, path, nil, key, out)
		var se *StatusError
		if err != nil && (!errors.As(err, &se) || se.Retryable()) {
			c.log.Warn().Err(err).Int("attempt", attempt).Str("path", path).Msg("gateway read failed, retrying")
			return retry.RetryableError(err)
		}
		return err
	})
}

// StatusError is a non-2xx gateway response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("gateway responded %d: %s", e.Code, e.Body)
}

// Retryable reports whether the request may succeed if sent again.
func (e *StatusError) Retryable() bool {
	return e.Code >= http.StatusInternalServerError || e.Code == http.StatusTooManyRequests
}

func (c *Client) send(ctx context.Context, method, path string, body []byte, key string, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Code: resp.StatusCode, Body: string(raw)}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
