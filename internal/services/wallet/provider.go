// Package wallet talks to the external signer: account access, chain
// selection, and submitting ticket purchases to the ticket contract.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// EIP-1193 provider error codes.
const (
	CodeUserRejected      = 4001
	CodeUnauthorized      = 4100
	CodeUnrecognizedChain = 4902
	CodeMethodNotFound    = -32601
)

var ErrSubscriptionUnsupported = errors.New("provider does not support subscriptions")

// ProviderError is an error the wallet answered with.
type ProviderError struct {
	Code    int
	Message string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider error %d: %s", e.Code, e.Message)
}

func (e *ProviderError) ErrorCode() int { return e.Code }

// ErrorCode returns the provider code carried by err, or 0.
func ErrorCode(err error) int {
	var coded interface{ ErrorCode() int }
	if errors.As(err, &coded) {
		return coded.ErrorCode()
	}
	return 0
}

func IsUserRejection(err error) bool {
	code := ErrorCode(err)
	return code == CodeUserRejected || code == CodeUnauthorized
}

type Transaction struct {
	From  common.Address
	To    common.Address
	Data  []byte
	Value *big.Int
	Gas   uint64
}

type Receipt struct {
	TxHash      common.Hash
	BlockNumber uint64
	Status      uint64
}

func (r *Receipt) Succeeded() bool { return r.Status == 1 }

type Currency struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
}

// ChainDescriptor is what a wallet needs to register a chain it does not
// know yet.
type ChainDescriptor struct {
	ChainID           uint64
	ChainName         string
	NativeCurrency    Currency
	RPCURLs           []string
	BlockExplorerURLs []string
}

type Subscription interface {
	Unsubscribe()
	Err() <-chan error
}

// Provider is the wallet capability set the booking flow needs.
type Provider interface {
	RequestAccounts(ctx context.Context) ([]string, error)
	Accounts(ctx context.Context) ([]string, error)
	ChainID(ctx context.Context) (uint64, error)
	SwitchChain(ctx context.Context, chainID uint64) error
	AddChain(ctx context.Context, chain ChainDescriptor) error
	EstimateGas(ctx context.Context, tx Transaction) (uint64, error)
	SendTransaction(ctx context.Context, tx Transaction) (common.Hash, error)
	// TransactionReceipt returns nil while the transaction is pending.
	TransactionReceipt(ctx context.Context, hash common.Hash) (*Receipt, error)
	Call(ctx context.Context, tx Transaction) ([]byte, error)
	// SubscribeChainChanged returns ErrSubscriptionUnsupported when the
	// provider emits no events; callers then poll.
	SubscribeChainChanged(ctx context.Context, ch chan<- uint64) (Subscription, error)
}
