package bridge

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tbourn/zk-paygate/internal/domain"
)

// Fetcher retrieves the signed bytes of a message.
type Fetcher interface {
	Fetch(ctx context.Context, chain uint16, emitter string, sequence uint64) ([]byte, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, chain uint16, emitter string, sequence uint64) ([]byte, error)

// Fetch implements Fetcher.
func (f FetcherFunc) Fetch(ctx context.Context, chain uint16, emitter string, sequence uint64) ([]byte, error) {
	return f(ctx, chain, emitter, sequence)
}

const maxResponseBytes = 64 << 10

// HTTPFetcher reads signed messages from a guardian REST endpoint:
// GET {base}/v1/signed_vaa/{chain}/{emitter}/{sequence} -> {"vaaBytes": "<base64>"}.
type HTTPFetcher struct {
	base    string
	client  *http.Client
	timeout time.Duration
}

// NewHTTPFetcher returns a fetcher bound to baseURL. A zero timeout means 5s.
func NewHTTPFetcher(baseURL string, timeout time.Duration, client *http.Client) *HTTPFetcher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPFetcher{base: strings.TrimRight(baseURL, "/"), client: client, timeout: timeout}
}

// Fetch returns domain.ErrNotYetAttested on 404 and domain.ErrUpstream for
// any other transport or status failure. It never retries.
func (f *HTTPFetcher) Fetch(ctx context.Context, chain uint16, emitter string, sequence uint64) ([]byte, error) {
	if f.base == "" {
		return nil, fmt.Errorf("%w: guardian endpoint not configured", domain.ErrUpstream)
	}
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	url := fmt.Sprintf("%s/v1/signed_vaa/%d/%s/%d", f.base, chain, emitter, sequence)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUpstream, err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch signed message: %v", domain.ErrUpstream, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: message %d/%s/%d not found", domain.ErrNotYetAttested, chain, emitter, sequence)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: guardian endpoint returned %d", domain.ErrUpstream, resp.StatusCode)
	}

	var body struct {
		VAABytes string `json:"vaaBytes"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: decode guardian response: %v", domain.ErrUpstream, err)
	}
	raw, err := base64.StdEncoding.DecodeString(body.VAABytes)
	if err != nil {
		return nil, fmt.Errorf("%w: signed message is not base64", domain.ErrMalformedInput)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty signed message", domain.ErrNotYetAttested)
	}
	return raw, nil
}
