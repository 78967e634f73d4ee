// Package indexer reads chain snapshots and candidate details from the
// staking indexer HTTP API.
package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/safwentrabelsi/staking-aggregator/snapshot"
	"github.com/safwentrabelsi/staking-aggregator/types"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("module", "indexer")

type HttpClient interface {
	Do(req *http.Request) (*http.Response, error)
}

type indexerConfig interface {
	GetURL() string
	GetTimeout() time.Duration
	GetRetryAttempts() int
}

type Client struct {
	url           string
	client        HttpClient
	retryAttempts uint
}

func NewClient(cfg indexerConfig) *Client {
	return &Client{
		url:           strings.TrimRight(cfg.GetURL(), "/"),
		retryAttempts: uint(max(cfg.GetRetryAttempts(), 1)),
		client: &http.Client{
			Timeout: cfg.GetTimeout(),
		}}
}

type candidateResponse struct {
	Commission string `json:"commission"`
	Blocked    bool   `json:"blocked"`
	Identity   *struct {
		Display    string `json:"display"`
		Judgements int    `json:"judgements"`
	} `json:"identity"`
}

func (c *Client) ReadSnapshot(ctx context.Context, chain string, accounts []string) (snapshot.Snapshot, error) {
	endpoint := fmt.Sprintf("%s/v1/snapshots/%s", c.url, url.PathEscape(chain))
	if len(accounts) > 0 {
		endpoint += "?" + url.Values{"accounts": {strings.Join(accounts, ",")}}.Encode()
	}

	var envelope snapshot.RawEnvelope
	if err := c.getJSON(ctx, endpoint, &envelope); err != nil {
		return nil, err
	}
	snap, err := envelope.Parse()
	if err != nil {
		return nil, err
	}
	if snap.Chain() != "" && snap.Chain() != chain {
		return nil, fmt.Errorf("%w: asked for %s, indexer returned %s", types.ErrMalformedSnapshot, chain, snap.Chain())
	}
	return snap, nil
}

func (c *Client) FetchCandidateDetail(ctx context.Context, chain, address string) (*snapshot.CandidateDetail, error) {
	endpoint := fmt.Sprintf("%s/v1/candidates/%s/%s", c.url, url.PathEscape(chain), url.PathEscape(address))

	var resp candidateResponse
	if err := c.getJSON(ctx, endpoint, &resp); err != nil {
		return nil, err
	}

	detail := &snapshot.CandidateDetail{Blocked: resp.Blocked}
	if resp.Commission != "" {
		perbill, err := strconv.ParseUint(resp.Commission, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("candidate %s: invalid commission %q", address, resp.Commission)
		}
		v := uint32(perbill)
		detail.Commission = &v
	}
	if resp.Identity != nil {
		detail.Identity = &snapshot.Identity{Display: resp.Identity.Display, Judgements: resp.Identity.Judgements}
	}
	return detail, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, target interface{}) error {
	req, err := http.NewRequest(http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := c.executeRequest(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("%w: decoding %s: %v", types.ErrMalformedSnapshot, endpoint, err)
	}
	return nil
}

func (c *Client) executeRequest(ctx context.Context, req *http.Request) (*http.Response, error) {
	return retry.DoWithData(
		func() (*http.Response, error) {
			req = req.WithContext(ctx)
			resp, err := c.client.Do(req)
			if err != nil {
				return nil, err
			}

			switch resp.StatusCode {
			case http.StatusOK:
				return resp, nil
			case http.StatusNotFound:
				resp.Body.Close()
				return nil, retry.Unrecoverable(fmt.Errorf("%w: %s", types.ErrChainDataMissing, req.URL.Path))
			default:
				resp.Body.Close()
				return nil, fmt.Errorf("non 200 status code: %v", resp.StatusCode)
			}
		},
		retry.Context(ctx),
		retry.Attempts(c.retryAttempts),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			log.Errorf("failed to fetch data err: %v, retrying...", err)
		}),
	)
}
