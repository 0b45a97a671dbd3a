package wallet

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"cinema-booking/internal/status"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

const ticketABI = `[
	{"type":"function","name":"mintTicket","stateMutability":"nonpayable",
	 "inputs":[{"name":"filmId","type":"string"},{"name":"seatNumber","type":"uint256"},{"name":"metadataURI","type":"string"}],
	 "outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"verifyTicket","stateMutability":"view",
	 "inputs":[{"name":"filmId","type":"string"},{"name":"userId","type":"string"},{"name":"seatNumber","type":"uint256"}],
	 "outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"getTicketByFilmAndSeat","stateMutability":"view",
	 "inputs":[{"name":"filmId","type":"string"},{"name":"seatNumber","type":"uint256"}],
	 "outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"isTicketValid","stateMutability":"view",
	 "inputs":[{"name":"ticketId","type":"uint256"}],
	 "outputs":[{"name":"","type":"bool"}]}
]`

const (
	// SepoliaFallbackGas is used on Sepolia when estimation fails there.
	SepoliaFallbackGas = 500000
	sepoliaChainID     = 11155111
)

// DefaultConfirmTimeout bounds how long a sent transaction is waited on.
const DefaultConfirmTimeout = 10 * time.Minute

var ErrTransactionReverted = errors.New("transaction reverted")

// UnconfirmedError means the transaction was sent but no receipt arrived
// before the wait stopped. It may still be mined.
type UnconfirmedError struct {
	Hash    common.Hash
	LastErr error
	Err     error
}

func (e *UnconfirmedError) Error() string {
	if e.LastErr != nil {
		return fmt.Sprintf("%v: %s: %v (last receipt error: %v)", status.ErrTransactionUnconfirmed, e.Hash.Hex(), e.Err, e.LastErr)
	}
	return fmt.Sprintf("%v: %s: %v", status.ErrTransactionUnconfirmed, e.Hash.Hex(), e.Err)
}

func (e *UnconfirmedError) Unwrap() []error {
	return []error{status.ErrTransactionUnconfirmed, e.Err}
}

type ContractOption func(*Contract)

func WithConfirmPollInterval(d time.Duration) ContractOption {
	return func(c *Contract) {
		if d > 0 {
			c.confirmPoll = d
		}
	}
}

func WithConfirmTimeout(d time.Duration) ContractOption {
	return func(c *Contract) {
		if d > 0 {
			c.confirmTimeout = d
		}
	}
}

func WithClock(now func() time.Time) ContractOption {
	return func(c *Contract) { c.now = now }
}

// Contract is the ticket contract reached through the wallet provider.
type Contract struct {
	provider       Provider
	address        common.Address
	abi            abi.ABI
	confirmPoll    time.Duration
	confirmTimeout time.Duration
	now            func() time.Time
}

func NewContract(provider Provider, address string, opts ...ContractOption) (*Contract, error) {
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("NewContract: invalid contract address %q", address)
	}
	parsed, err := abi.JSON(strings.NewReader(ticketABI))
	if err != nil {
		return nil, fmt.Errorf("NewContract: abi.JSON: %w", err)
	}

	c := &Contract{
		provider:       provider,
		address:        common.HexToAddress(address),
		abi:            parsed,
		confirmPoll:    time.Second,
		confirmTimeout: DefaultConfirmTimeout,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Contract) Address() string { return c.address.Hex() }

type PurchaseRequest struct {
	From       string
	ChainID    uint64
	FilmID     string
	SeatNumber int
	Price      decimal.Decimal
}

// MetadataURI builds the data: URI minted with a ticket.
func MetadataURI(filmID string, seat int, price decimal.Decimal, at time.Time) (string, error) {
	b, err := json.Marshal(struct {
		FilmID     string      `json:"filmId"`
		SeatNumber int         `json:"seatNumber"`
		Price      json.Number `json:"price"`
		Timestamp  int64       `json:"timestamp"`
	}{filmID, seat, json.Number(price.String()), at.UnixMilli()})
	if err != nil {
		return "", err
	}
	return "data:application/json;base64," + base64.StdEncoding.EncodeToString(b), nil
}

// Submit signs and sends the mintTicket transaction without waiting for it.
func (c *Contract) Submit(ctx context.Context, req PurchaseRequest) (common.Hash, error) {
	if !common.IsHexAddress(req.From) {
		return common.Hash{}, fmt.Errorf("Submit: %w: invalid sender %q", status.ErrBlockchainTransaction, req.From)
	}

	uri, err := MetadataURI(req.FilmID, req.SeatNumber, req.Price, c.now())
	if err != nil {
		return common.Hash{}, fmt.Errorf("Submit: metadata: %w: %v", status.ErrBlockchainTransaction, err)
	}

	data, err := c.abi.Pack("mintTicket", req.FilmID, big.NewInt(int64(req.SeatNumber)), uri)
	if err != nil {
		return common.Hash{}, fmt.Errorf("Submit: abi.Pack: %w: %v", status.ErrBlockchainTransaction, err)
	}

	tx := Transaction{From: common.HexToAddress(req.From), To: c.address, Data: data}

	gas, err := c.gasLimit(ctx, tx, req.ChainID)
	if err != nil {
		return common.Hash{}, fmt.Errorf("Submit: %w: %v", status.ErrBlockchainTransaction, err)
	}
	tx.Gas = gas

	hash, err := c.provider.SendTransaction(ctx, tx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("Submit: send: %w: %v", status.ErrBlockchainTransaction, err)
	}
	slog.Info("ticket transaction sent", "tx", hash.Hex(), "film_id", req.FilmID, "seat", req.SeatNumber, "gas", gas)
	return hash, nil
}

// gasLimit pads the estimate by 20%. Sepolia estimates are unreliable, so
// there a failed estimate falls back to a fixed limit.
func (c *Contract) gasLimit(ctx context.Context, tx Transaction, chainID uint64) (uint64, error) {
	est, err := c.provider.EstimateGas(ctx, tx)
	if err != nil {
		if chainID == sepoliaChainID && !IsUserRejection(err) {
			slog.Warn("gas estimation failed on sepolia, using fixed limit", "error", err, "gas", SepoliaFallbackGas)
			return SepoliaFallbackGas, nil
		}
		return 0, fmt.Errorf("estimate gas: %w", err)
	}
	return est * 12 / 10, nil
}

// WaitForConfirmation polls for the receipt until the transaction is mined,
// ctx is done or the confirm timeout passes. Failed lookups are retried;
// only a reverted receipt ends the wait early. Giving up returns an
// *UnconfirmedError.
func (c *Contract) WaitForConfirmation(ctx context.Context, hash common.Hash) (*Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, c.confirmTimeout)
	defer cancel()

	ticker := time.NewTicker(c.confirmPoll)
	defer ticker.Stop()

	var lastErr error
	for {
		receipt, err := c.provider.TransactionReceipt(ctx, hash)
		switch {
		case err != nil:
			lastErr = err
			slog.Warn("receipt lookup failed, retrying", "tx", hash.Hex(), "error", err)
		case receipt != nil:
			if !receipt.Succeeded() {
				return receipt, fmt.Errorf("%s in block %d: %w", hash.Hex(), receipt.BlockNumber, ErrTransactionReverted)
			}
			slog.Info("ticket transaction confirmed", "tx", hash.Hex(), "block", receipt.BlockNumber)
			return receipt, nil
		}

		select {
		case <-ctx.Done():
			return nil, &UnconfirmedError{Hash: hash, LastErr: lastErr, Err: ctx.Err()}
		case <-ticker.C:
		}
	}
}

func (c *Contract) call(ctx context.Context, method string, args ...any) ([]any, error) {
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: abi.Pack: %w", method, err)
	}
	out, err := c.provider.Call(ctx, Transaction{To: c.address, Data: data})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	res, err := c.abi.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("%s: abi.Unpack: %w", method, err)
	}
	if len(res) != 1 {
		return nil, fmt.Errorf("%s: expected 1 output, got %d", method, len(res))
	}
	return res, nil
}

func (c *Contract) VerifyTicket(ctx context.Context, filmID, userID string, seat int) (bool, error) {
	res, err := c.call(ctx, "verifyTicket", filmID, userID, big.NewInt(int64(seat)))
	if err != nil {
		return false, err
	}
	ok, _ := res[0].(bool)
	return ok, nil
}

// TicketByFilmAndSeat returns 0 when no ticket was minted for the seat.
func (c *Contract) TicketByFilmAndSeat(ctx context.Context, filmID string, seat int) (*big.Int, error) {
	res, err := c.call(ctx, "getTicketByFilmAndSeat", filmID, big.NewInt(int64(seat)))
	if err != nil {
		return nil, err
	}
	id, ok := res[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("getTicketByFilmAndSeat: unexpected output %T", res[0])
	}
	return id, nil
}

func (c *Contract) IsTicketValid(ctx context.Context, ticketID *big.Int) (bool, error) {
	res, err := c.call(ctx, "isTicketValid", ticketID)
	if err != nil {
		return false, err
	}
	ok, _ := res[0].(bool)
	return ok, nil
}

// VerifyOnChain asks the contract directly, then falls back to looking the
// seat's ticket up and checking it is still valid.
func (c *Contract) VerifyOnChain(ctx context.Context, filmID, userID string, seat int) (bool, error) {
	ok, err := c.VerifyTicket(ctx, filmID, userID, seat)
	if err == nil {
		return ok, nil
	}
	slog.Debug("verifyTicket failed, trying ticket lookup", "error", err, "film_id", filmID, "seat", seat)

	id, lookupErr := c.TicketByFilmAndSeat(ctx, filmID, seat)
	if lookupErr != nil {
		return false, errors.Join(err, lookupErr)
	}
	if id.Sign() == 0 {
		return false, nil
	}
	return c.IsTicketValid(ctx, id)
}
