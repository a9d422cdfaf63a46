package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"

	"dexloan-indexer/internal/observability"
)

var (
	// ErrAccountNotFound is returned when the account does not exist.
	ErrAccountNotFound = errors.New("account not found")
	// ErrTransactionNotFound is returned when the node has no record of the signature.
	ErrTransactionNotFound = errors.New("transaction not found")
)

// maxMultipleAccounts is the getMultipleAccounts request limit.
const maxMultipleAccounts = 100

// Account is the raw canonical state of an account.
type Account struct {
	Address  solana.PublicKey
	Owner    solana.PublicKey
	Lamports uint64
	Data     []byte
}

// MemcmpFilter matches accounts whose data contains Bytes at Offset.
type MemcmpFilter struct {
	Offset uint64
	Bytes  []byte
}

// Client reads canonical chain state through a Solana JSON-RPC node.
type Client struct {
	rpc        *rpc.Client
	commitment rpc.CommitmentType
	logger     *zap.Logger
}

// ClientOption configures Client.
type ClientOption func(*Client)

// WithCommitment sets the commitment used for every read.
func WithCommitment(commitment string) ClientOption {
	return func(c *Client) {
		if commitment != "" {
			c.commitment = rpc.CommitmentType(commitment)
		}
	}
}

// WithRPCClient replaces the underlying RPC client.
func WithRPCClient(client *rpc.Client) ClientOption {
	return func(c *Client) {
		c.rpc = client
	}
}

// NewClient creates a ledger client for the given RPC endpoint.
func NewClient(endpoint string, logger *zap.Logger, opts ...ClientOption) *Client {
	c := &Client{
		rpc:        rpc.New(endpoint),
		commitment: rpc.CommitmentConfirmed,
		logger:     logger.Named("ledger"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetAccount reads one account. Returns ErrAccountNotFound if it does not exist.
func (c *Client) GetAccount(ctx context.Context, address solana.PublicKey) (*Account, error) {
	start := time.Now()
	res, err := c.rpc.GetAccountInfoWithOpts(ctx, address, &rpc.GetAccountInfoOpts{
		Encoding:   solana.EncodingBase64,
		Commitment: c.commitment,
	})
	observability.RecordRPCLatency("getAccountInfo", time.Since(start).Seconds())
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return nil, ErrAccountNotFound
		}
		c.logger.Debug("getAccountInfo failed", zap.String("address", address.String()), zap.Error(err))
		return nil, fmt.Errorf("get account info: %w", err)
	}
	if res == nil || res.Value == nil {
		return nil, ErrAccountNotFound
	}
	return toAccount(address, res.Value), nil
}

// GetMultipleAccounts reads accounts in request-sized chunks. The result is
// aligned with addresses; absent accounts are nil.
func (c *Client) GetMultipleAccounts(ctx context.Context, addresses []solana.PublicKey) ([]*Account, error) {
	out := make([]*Account, 0, len(addresses))
	for start := 0; start < len(addresses); start += maxMultipleAccounts {
		end := min(start+maxMultipleAccounts, len(addresses))
		chunk := addresses[start:end]

		begin := time.Now()
		res, err := c.rpc.GetMultipleAccountsWithOpts(ctx, chunk, &rpc.GetMultipleAccountsOpts{
			Encoding:   solana.EncodingBase64,
			Commitment: c.commitment,
		})
		observability.RecordRPCLatency("getMultipleAccounts", time.Since(begin).Seconds())
		if err != nil {
			c.logger.Debug("getMultipleAccounts failed", zap.Int("count", len(chunk)), zap.Error(err))
			return nil, fmt.Errorf("get multiple accounts: %w", err)
		}
		if len(res.Value) != len(chunk) {
			return nil, fmt.Errorf("get multiple accounts: expected %d results, got %d", len(chunk), len(res.Value))
		}
		for i, acc := range res.Value {
			if acc == nil {
				out = append(out, nil)
				continue
			}
			out = append(out, toAccount(chunk[i], acc))
		}
	}
	return out, nil
}

// GetProgramAccounts lists addresses of program accounts matching all
// filters. Account data is not transferred.
func (c *Client) GetProgramAccounts(ctx context.Context, program solana.PublicKey, filters []MemcmpFilter) ([]solana.PublicKey, error) {
	offset, length := uint64(0), uint64(0)
	opts := &rpc.GetProgramAccountsOpts{
		Commitment: c.commitment,
		Encoding:   solana.EncodingBase64,
		DataSlice: &rpc.DataSlice{
			Offset: &offset,
			Length: &length,
		},
	}
	for _, f := range filters {
		opts.Filters = append(opts.Filters, rpc.RPCFilter{
			Memcmp: &rpc.RPCFilterMemcmp{
				Offset: f.Offset,
				Bytes:  f.Bytes,
			},
		})
	}

	start := time.Now()
	res, err := c.rpc.GetProgramAccountsWithOpts(ctx, program, opts)
	observability.RecordRPCLatency("getProgramAccounts", time.Since(start).Seconds())
	if err != nil {
		c.logger.Debug("getProgramAccounts failed", zap.String("program", program.String()), zap.Error(err))
		return nil, fmt.Errorf("get program accounts: %w", err)
	}

	addresses := make([]solana.PublicKey, 0, len(res))
	for _, keyed := range res {
		if keyed == nil {
			continue
		}
		addresses = append(addresses, keyed.Pubkey)
	}
	return addresses, nil
}

// GetTransaction fetches a confirmed transaction in the same JSON shape the
// webhook delivers.
func (c *Client) GetTransaction(ctx context.Context, signature string) (*Transaction, error) {
	params := []interface{}{
		signature,
		map[string]interface{}{
			"encoding":                       "json",
			"commitment":                     c.commitment,
			"maxSupportedTransactionVersion": 0,
		},
	}

	var out *Transaction
	start := time.Now()
	err := c.rpc.RPCCallForInto(ctx, &out, "getTransaction", params)
	observability.RecordRPCLatency("getTransaction", time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	if out == nil {
		return nil, ErrTransactionNotFound
	}
	return out, nil
}

func toAccount(address solana.PublicKey, acc *rpc.Account) *Account {
	out := &Account{
		Address:  address,
		Owner:    acc.Owner,
		Lamports: acc.Lamports,
	}
	if acc.Data != nil {
		out.Data = acc.Data.GetBinary()
	}
	return out
}
