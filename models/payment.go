package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentMethod string

const (
	MethodConventional PaymentMethod = "conventional"
	MethodBlockchain   PaymentMethod = "blockchain"
)

// PaymentStage is the step an in-flight payment is waiting on. Each stage
// fails independently and needs a different remedy.
type PaymentStage string

const (
	StageIdle                  PaymentStage = "idle"
	StageConnectingWallet      PaymentStage = "connecting_wallet"
	StageSwitchingNetwork      PaymentStage = "switching_network"
	StageSubmittingTransaction PaymentStage = "submitting_transaction"
	StageConfirmingTransaction PaymentStage = "confirming_transaction"
	StageConfirmingBackend     PaymentStage = "confirming_backend"
)

// ChainProof identifies the on-chain transaction that paid for a seat.
type ChainProof struct {
	WalletAddress   string `json:"wallet_address"`
	TransactionHash string `json:"transaction_hash"`
	BlockIndex      uint64 `json:"block_index"`
}

type PaymentResult struct {
	ReservationID string          `json:"reservation_id"`
	Method        PaymentMethod   `json:"method"`
	Amount        decimal.Decimal `json:"amount"`
	Proof         *ChainProof     `json:"proof,omitempty"`
	Reservation   Reservation     `json:"reservation"`
	CompletedAt   time.Time       `json:"completed_at"`
}

// PaymentNotification is pushed to the user's channel as a payment moves
// through its stages.
type PaymentNotification struct {
	Type          string        `json:"type"`
	ReservationID string        `json:"reservation_id,omitempty"`
	FilmID        string        `json:"film_id"`
	SeatNumber    int           `json:"seat_number"`
	Method        PaymentMethod `json:"method"`
	Stage         PaymentStage  `json:"stage,omitempty"`
	Error         string        `json:"error,omitempty"`
	Message       string        `json:"message,omitempty"`
}
