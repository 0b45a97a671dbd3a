package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"cinema-booking/internal/services/backend"
	"cinema-booking/internal/services/wallet"
	"cinema-booking/internal/status"
	"cinema-booking/models"

	"github.com/ethereum/go-ethereum/common"
)

// WalletSession is the part of the wallet monitor a payment needs.
type WalletSession interface {
	IsConnected() bool
	Address() string
	Session() models.WalletSession
	Connect(ctx context.Context) (string, error)
	EnsureNetwork(ctx context.Context) error
}

// TicketMinter submits the on-chain purchase and waits for it to be mined.
type TicketMinter interface {
	Submit(ctx context.Context, req wallet.PurchaseRequest) (common.Hash, error)
	WaitForConfirmation(ctx context.Context, hash common.Hash) (*wallet.Receipt, error)
}

// Wallet pays on-chain, then confirms with the backend. The steps run
// strictly in order and a failed step stops the payment.
type Wallet struct {
	wallet  WalletSession
	minter  TicketMinter
	backend Confirmer
}

func NewWallet(w WalletSession, m TicketMinter, b Confirmer) *Wallet {
	return &Wallet{wallet: w, minter: m, backend: b}
}

func (w *Wallet) Method() models.PaymentMethod { return models.MethodBlockchain }

func (w *Wallet) Pay(ctx context.Context, req *Request) (*Outcome, error) {
	proof, err := w.Mint(ctx, req)
	if err != nil {
		return nil, err
	}

	req.report(models.StageConfirmingBackend)
	details := backend.PaymentDetails{
		PaymentMethod:   models.MethodBlockchain,
		Amount:          req.Film.Price,
		WalletAddress:   proof.WalletAddress,
		BlockIndex:      &proof.BlockIndex,
		TransactionHash: proof.TransactionHash,
	}

	confirmed, echoed, err := w.backend.ConfirmPayment(ctx, req.Session, req.Reservation.ID, details)
	if err != nil {
		return nil, &status.ReconciliationError{
			ReservationID:   req.Reservation.ID,
			FilmID:          req.Reservation.FilmID,
			UserID:          req.Session.UserID,
			SeatNumber:      req.Reservation.SeatNumber,
			WalletAddress:   proof.WalletAddress,
			TransactionHash: proof.TransactionHash,
			BlockIndex:      proof.BlockIndex,
			Amount:          req.Film.Price,
			Cause:           err,
		}
	}

	out := &Outcome{Method: models.MethodBlockchain, Amount: req.Film.Price, Proof: proof}
	if echoed {
		out.Confirmed = confirmed
	}
	return out, nil
}

// Mint runs the on-chain half of a wallet payment: connect, get onto the
// expected network, submit and wait for the receipt. Nothing is sent to
// the backend.
func (w *Wallet) Mint(ctx context.Context, req *Request) (*models.ChainProof, error) {
	if !w.wallet.IsConnected() {
		req.report(models.StageConnectingWallet)
		if _, err := w.wallet.Connect(ctx); err != nil {
			return nil, fmt.Errorf("%w: %v", status.ErrWalletConnection, err)
		}
	}

	req.report(models.StageSwitchingNetwork)
	if err := w.wallet.EnsureNetwork(ctx); err != nil {
		return nil, err
	}

	sess := w.wallet.Session()
	req.report(models.StageSubmittingTransaction)
	hash, err := w.minter.Submit(ctx, wallet.PurchaseRequest{
		From:       sess.Address,
		ChainID:    sess.ChainID,
		FilmID:     req.Film.ID,
		SeatNumber: req.Reservation.SeatNumber,
		Price:      req.Film.Price,
	})
	if err != nil {
		return nil, err
	}

	req.report(models.StageConfirmingTransaction)
	receipt, err := w.minter.WaitForConfirmation(ctx, hash)
	if errors.Is(err, wallet.ErrTransactionReverted) {
		return nil, fmt.Errorf("%w: %v", status.ErrBlockchainTransaction, err)
	}
	if err != nil {
		// sent but outcome unknown; the user may already have paid
		return nil, &status.ReconciliationError{
			ReservationID:   req.Reservation.ID,
			FilmID:          req.Film.ID,
			UserID:          req.Session.UserID,
			SeatNumber:      req.Reservation.SeatNumber,
			WalletAddress:   sess.Address,
			TransactionHash: hash.Hex(),
			Amount:          req.Film.Price,
			Cause:           fmt.Errorf("%w: %v", status.ErrTransactionUnconfirmed, err),
		}
	}

	slog.Info("ticket minted",
		"film_id", req.Film.ID,
		"seat", req.Reservation.SeatNumber,
		"tx", receipt.TxHash.Hex(),
		"block", receipt.BlockNumber,
		"wallet", models.ShortAddress(sess.Address),
	)

	return &models.ChainProof{
		WalletAddress:   sess.Address,
		TransactionHash: receipt.TxHash.Hex(),
		BlockIndex:      receipt.BlockNumber,
	}, nil
}
