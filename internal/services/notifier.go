package services

import (
	"context"
	"fmt"
	"log/slog"

	"cinema-booking/models"

	pubnub "github.com/pubnub/go/v7"
)

// WalletChannel carries wallet session changes to every connected client.
const WalletChannel = "wallet-events"

// Notifier pushes realtime updates to clients.
type Notifier interface {
	Publish(ctx context.Context, channel string, msg any) error
}

func UserChannel(userID string) string {
	return fmt.Sprintf("user-%s", userID)
}

type PubNubConfig struct {
	PublishKey   string
	SubscribeKey string
	SecretKey    string
	UserID       string
}

// PubNubNotifier publishes through PubNub.
type PubNubNotifier struct {
	pn *pubnub.PubNub
}

func NewPubNubNotifier(cfg PubNubConfig) *PubNubNotifier {
	userID := cfg.UserID
	if userID == "" {
		userID = "cinema-booking-gateway"
	}

	pnCfg := pubnub.NewConfigWithUserId(pubnub.UserId(userID))
	pnCfg.PublishKey = cfg.PublishKey
	pnCfg.SubscribeKey = cfg.SubscribeKey
	pnCfg.SecretKey = cfg.SecretKey

	return &PubNubNotifier{pn: pubnub.NewPubNub(pnCfg)}
}

func (n *PubNubNotifier) Publish(ctx context.Context, channel string, msg any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, _, err := n.pn.Publish().Channel(channel).Message(msg).Execute(); err != nil {
		return fmt.Errorf("pubnub publish %s: %w", channel, err)
	}
	return nil
}

// NopNotifier drops everything; used when PubNub is not configured.
type NopNotifier struct{}

func (NopNotifier) Publish(context.Context, string, any) error { return nil }

// notify publishes best effort. A lost notification never fails a booking.
func notify(ctx context.Context, n Notifier, channel string, msg any) {
	if n == nil {
		return
	}
	if err := n.Publish(ctx, channel, msg); err != nil {
		slog.Warn("notification not delivered", "channel", channel, "error", err)
	}
}

// WalletEventSource is the wallet monitor's event feed.
type WalletEventSource interface {
	Subscribe() (<-chan models.WalletEvent, func())
}

// RelayWalletEvents forwards wallet session changes to WalletChannel until
// ctx is done.
func RelayWalletEvents(ctx context.Context, src WalletEventSource, n Notifier) {
	events, stop := src.Subscribe()
	defer stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			notify(ctx, n, WalletChannel, map[string]any{
				"type":      "wallet_" + ev.Source,
				"connected": ev.Session.Connected,
				"address":   models.ShortAddress(ev.Session.Address),
				"chain_id":  ev.Session.ChainID,
				"network":   ev.Network,
			})
		}
	}
}
