package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// OnChainSource answers "project on-chain snapshot by id". Implementations
// talk to an indexer or subgraph API; tests substitute fakes.
type OnChainSource interface {
	FetchOnChain(ctx context.Context, projectID, contractAddress string, chainID int64) (*OnChainData, error)
}

// OffChainSource answers "project metadata by id".
type OffChainSource interface {
	FetchOffChain(ctx context.Context, projectID string) (*OffChainData, error)
}

// HTTPOnChainSource fetches on-chain snapshots from an indexer API.
type HTTPOnChainSource struct {
	client *resty.Client
}

// NewHTTPOnChainSource builds a source against the given indexer base URL.
func NewHTTPOnChainSource(baseURL string, timeout time.Duration) *HTTPOnChainSource {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")
	return &HTTPOnChainSource{client: client}
}

func (s *HTTPOnChainSource) FetchOnChain(ctx context.Context, projectID, contractAddress string, chainID int64) (*OnChainData, error) {
	var data OnChainData

	req := s.client.R().
		SetContext(ctx).
		SetQueryParam("chainId", fmt.Sprintf("%d", chainID)).
		SetResult(&data)
	if contractAddress != "" {
		req.SetQueryParam("contractAddress", contractAddress)
	}

	resp, err := req.Get(fmt.Sprintf("/projects/%s/on-chain", projectID))
	if err != nil {
		return nil, fmt.Errorf("on-chain request failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("on-chain API responded with %d", resp.StatusCode())
	}

	return &data, nil
}

// HTTPOffChainSource fetches project metadata from the project API.
type HTTPOffChainSource struct {
	client *resty.Client
}

// NewHTTPOffChainSource builds a source against the given project API base URL.
func NewHTTPOffChainSource(baseURL string, timeout time.Duration) *HTTPOffChainSource {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")
	return &HTTPOffChainSource{client: client}
}

func (s *HTTPOffChainSource) FetchOffChain(ctx context.Context, projectID string) (*OffChainData, error) {
	var data OffChainData

	resp, err := s.client.R().
		SetContext(ctx).
		SetResult(&data).
		Get(fmt.Sprintf("/projects/%s", projectID))
	if err != nil {
		return nil, fmt.Errorf("off-chain request failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("off-chain API responded with %d", resp.StatusCode())
	}

	return &data, nil
}
