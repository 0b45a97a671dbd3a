package status

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"
)

var (
	ErrFetch               = errors.New("fetch: backend unreachable or rejected the request")
	ErrNotFound            = errors.New("fetch: resource not found")
	ErrInvalidSelection    = errors.New("seat: seat is not selectable")
	ErrReservationConflict = errors.New("reservation: hold rejected by backend")
	ErrPayment             = errors.New("payment: payment rejected")
	ErrAlreadyVerified     = errors.New("payment: reservation already verified")
	ErrUnsupportedMethod   = errors.New("payment: unsupported payment method")
	ErrAlreadyInProgress   = errors.New("payment: payment already in progress")

	ErrWalletUnavailable      = errors.New("wallet: no wallet provider available")
	ErrWalletRejected         = errors.New("wallet: request rejected in wallet")
	ErrWalletConnection       = errors.New("wallet: connection failed")
	ErrNetworkSwitch          = errors.New("wallet: network switch failed")
	ErrBlockchainTransaction  = errors.New("chain: transaction failed")
	ErrTransactionUnconfirmed = errors.New("chain: transaction sent but never confirmed")

	ErrReconciliation = errors.New("reconciliation: paid on-chain but backend confirmation failed")

	ErrUnauthenticated = errors.New("session: unauthenticated")
	ErrRateLimited     = errors.New("rate limit exceeded, try again later")
)

// ReconciliationError means the chain took the payment and the backend did
// not record it. It must reach a human; never retry it automatically.
type ReconciliationError struct {
	ReservationID   string          `json:"reservation_id,omitempty"`
	FilmID          string          `json:"film_id"`
	UserID          string          `json:"user_id"`
	SeatNumber      int             `json:"seat_number"`
	WalletAddress   string          `json:"wallet_address"`
	TransactionHash string          `json:"transaction_hash"`
	BlockIndex      uint64          `json:"block_index"`
	Amount          decimal.Decimal `json:"amount"`
	Cause           error           `json:"-"`
}

func (e *ReconciliationError) Error() string {
	return fmt.Sprintf("%v: tx %s in block %d from %s (seat %d of film %s): %v",
		ErrReconciliation, e.TransactionHash, e.BlockIndex, e.WalletAddress, e.SeatNumber, e.FilmID, e.Cause)
}

func (e *ReconciliationError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrReconciliation}
	}
	return []error{ErrReconciliation, e.Cause}
}

// kinds is ordered most specific first; the first match wins.
var kinds = []struct {
	err    error
	kind   string
	status int
}{
	{ErrReconciliation, "reconciliation_error", http.StatusBadGateway},
	{ErrAlreadyInProgress, "already_in_progress", http.StatusConflict},
	{ErrWalletUnavailable, "wallet_unavailable", http.StatusServiceUnavailable},
	{ErrWalletRejected, "wallet_rejected", http.StatusForbidden},
	{ErrWalletConnection, "wallet_connection_error", http.StatusBadGateway},
	{ErrNetworkSwitch, "network_switch_error", http.StatusBadGateway},
	{ErrTransactionUnconfirmed, "transaction_unconfirmed", http.StatusGatewayTimeout},
	{ErrBlockchainTransaction, "blockchain_transaction_error", http.StatusBadGateway},
	{ErrInvalidSelection, "invalid_selection", http.StatusConflict},
	{ErrReservationConflict, "reservation_conflict", http.StatusConflict},
	{ErrAlreadyVerified, "already_verified", http.StatusConflict},
	{ErrUnsupportedMethod, "unsupported_method", http.StatusBadRequest},
	{ErrPayment, "payment_error", http.StatusPaymentRequired},
	{ErrUnauthenticated, "unauthenticated", http.StatusUnauthorized},
	{ErrRateLimited, "rate_limited", http.StatusTooManyRequests},
	{ErrNotFound, "not_found", http.StatusNotFound},
	{ErrFetch, "fetch_error", http.StatusBadGateway},
}

// Kind returns a stable code for err, "internal_error" when it is outside
// the taxonomy.
func Kind(err error) string {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return "internal_error"
}

func HTTPStatus(err error) int {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.status
		}
	}
	return http.StatusInternalServerError
}

// Retryable reports whether the user may safely try the same action again.
func Retryable(err error) bool {
	return err != nil && !errors.Is(err, ErrReconciliation)
}
