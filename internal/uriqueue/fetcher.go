package uriqueue

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// FetchResult is what the external fetcher/parser collaborator returns
// (§4.B step 3). HTTP(S)/IPFS/Arweave fetching and document parsing are
// explicitly out of scope for the core (§1); Fetcher is the seam.
type FetchResult struct {
	Status        string
	Bytes         int
	Hash          [32]byte
	Fields        map[string]string
	TruncatedKeys []string
}

// Fetcher is the external collaborator boundary for URI document retrieval.
type Fetcher interface {
	Fetch(ctx context.Context, uri string) (FetchResult, error)
}

// HTTPFetcher is the default Fetcher: a rate-limited HTTP GET bounded by
// maxBytes and a per-request timeout. Real IPFS/Arweave gateways are
// expected to wrap or replace this in production deployments; this
// implementation only knows how to speak plain HTTP(S).
type HTTPFetcher struct {
	client    *http.Client
	limiter   *rate.Limiter
	maxBytes  int64
	userAgent string
}

// NewHTTPFetcher builds a Fetcher rate-limited to 10 requests/second with a
// burst of 20, matching the bounded-concurrency spirit of the queue's own
// worker cap without coupling the two.
func NewHTTPFetcher(maxBytes int64, timeout time.Duration) *HTTPFetcher {
	return &HTTPFetcher{
		client:    &http.Client{Timeout: timeout},
		limiter:   rate.NewLimiter(rate.Limit(10), 20),
		maxBytes:  maxBytes,
		userAgent: "agentindexer-uriqueue/1.0",
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, uri string) (FetchResult, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return FetchResult{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return FetchResult{}, err
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return FetchResult{}, err
	}
	defer resp.Body.Close()

	limited := io.LimitReader(resp.Body, f.maxBytes)
	body, err := io.ReadAll(limited)
	if err != nil {
		return FetchResult{}, err
	}

	return FetchResult{
		Status: "ok",
		Bytes:  len(body),
		Hash:   sha256.Sum256(body),
		Fields: parseDocument(body),
	}, nil
}

// parseDocument flattens a top-level JSON object into string fields. Agent
// metadata documents are expected to be JSON; non-JSON bodies yield no
// fields rather than an error, since a malformed document should still
// produce an "ok" status row carrying the raw hash/byte-count.
func parseDocument(body []byte) map[string]string {
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil
	}
	fields := make(map[string]string, len(raw))
	for k, v := range raw {
		switch val := v.(type) {
		case string:
			fields[k] = val
		case bool, float64:
			fields[k] = fmt.Sprintf("%v", val)
		default:
			if encoded, err := json.Marshal(val); err == nil {
				fields[k] = string(encoded)
			}
		}
	}
	return fields
}
