// Package apr looks up the expected staking return published by an external service.
package apr

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/safwentrabelsi/staking-aggregator/metrics"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("module", "apr")

const DefaultTimeout = 8 * time.Second

type HttpClient interface {
	Do(req *http.Request) (*http.Response, error)
}

type aprConfig interface {
	GetTimeout() time.Duration
	GetRetryAttempts() int
}

type Client struct {
	client        HttpClient
	timeout       time.Duration
	retryAttempts uint
}

func NewClient(cfg aprConfig) *Client {
	timeout := cfg.GetTimeout()
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		client:        &http.Client{Timeout: timeout},
		timeout:       timeout,
		retryAttempts: uint(max(cfg.GetRetryAttempts(), 1)),
	}
}

type result struct {
	value *decimal.Decimal
	err   error
}

// Lookup returns the APR in percent published at url, or nil when the
// service fails or does not answer within the timeout.
func (c *Client) Lookup(ctx context.Context, chain, url string) *decimal.Decimal {
	if url == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	done := make(chan result, 1)
	go func() {
		v, err := c.fetch(ctx, url)
		done <- result{value: v, err: err}
	}()

	entry := log.WithFields(logrus.Fields{"chain": chain, "url": url})
	select {
	case r := <-done:
		if r.err != nil {
			entry.Warnf("APR lookup failed: %v", r.err)
			metrics.AprTimeoutInc(chain)
			return nil
		}
		return r.value
	case <-ctx.Done():
		entry.Warnf("APR lookup timed out after %s", c.timeout)
		metrics.AprTimeoutInc(chain)
		return nil
	}
}

func (c *Client) fetch(ctx context.Context, url string) (*decimal.Decimal, error) {
	return retry.DoWithData(
		func() (*decimal.Decimal, error) {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			if err != nil {
				return nil, retry.Unrecoverable(err)
			}
			resp, err := c.client.Do(req)
			if err != nil {
				return nil, err
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				return nil, fmt.Errorf("non 200 status code: %v", resp.StatusCode)
			}
			body, err := io.ReadAll(resp.Body)
			if err != nil {
				return nil, err
			}
			v, err := parse(body)
			if err != nil {
				return nil, retry.Unrecoverable(err)
			}
			return v, nil
		},
		retry.Context(ctx),
		retry.Attempts(c.retryAttempts),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			log.Debugf("APR request failed err: %v, retrying...", err)
		}),
	)
}

// parse accepts a bare number or an object with an "apr" field.
func parse(body []byte) (*decimal.Decimal, error) {
	raw := strings.Trim(strings.TrimSpace(string(body)), `"`)
	if v, err := decimal.NewFromString(raw); err == nil {
		return &v, nil
	}
	var payload struct {
		APR *decimal.Decimal `json:"apr"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("unexpected APR payload: %w", err)
	}
	if payload.APR == nil {
		return nil, fmt.Errorf("APR payload has no apr field")
	}
	return payload.APR, nil
}
