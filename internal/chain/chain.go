// Package chain provides read-only Ethereum access used to verify that a
// project's funding contract is actually deployed on the configured chain.
package chain

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Client wraps an RPC connection for contract verification and liveness probes.
type Client struct {
	eth     *ethclient.Client
	chainID int64
	logger  *slog.Logger
}

// Dial connects to the given RPC endpoint. The endpoint is optional for the
// rest of the system; callers should treat a nil *Client as "verification
// unavailable" rather than an error.
func Dial(rpcURL string, chainID int64, logger *slog.Logger) (*Client, error) {
	eth, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RPC: %w", err)
	}

	return &Client{
		eth:     eth,
		chainID: chainID,
		logger:  logger,
	}, nil
}

// ChainID returns the chain this client was configured for.
func (c *Client) ChainID() int64 {
	return c.chainID
}

// ValidAddress reports whether addr is a well-formed hex address.
func ValidAddress(addr string) bool {
	return common.IsHexAddress(addr)
}

// VerifyContract checks that the address holds deployed bytecode. An EOA or
// an undeployed address returns false with a nil error.
func (c *Client) VerifyContract(ctx context.Context, address string) (bool, error) {
	if !common.IsHexAddress(address) {
		return false, fmt.Errorf("invalid contract address: %s", address)
	}

	code, err := c.eth.CodeAt(ctx, common.HexToAddress(address), nil)
	if err != nil {
		return false, fmt.Errorf("failed to fetch contract code: %w", err)
	}

	return len(code) > 0, nil
}

// HealthCheck probes the RPC endpoint by fetching the latest block number.
// Used by the readiness endpoint.
func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	block, err := c.eth.BlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("rpc unreachable: %w", err)
	}

	c.logger.Debug("rpc health check ok", "chainId", c.chainID, "block", block)
	return nil
}

// Close releases the underlying RPC connection.
func (c *Client) Close() {
	c.eth.Close()
}
