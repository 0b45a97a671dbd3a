package models

// WalletSession is the last known state of the external wallet. Address is
// non-empty only while Connected.
type WalletSession struct {
	Connected bool   `json:"connected"`
	Address   string `json:"address"`
	ChainID   uint64 `json:"chain_id"`
}

type NetworkState string

const (
	NetworkUnknown  NetworkState = "unknown"
	NetworkExpected NetworkState = "expected"
	NetworkWrong    NetworkState = "wrong"
)

type NetworkStatus struct {
	OnExpectedNetwork bool   `json:"on_expected_network"`
	CurrentChainID    uint64 `json:"current_chain_id"`
	ExpectedChainID   uint64 `json:"expected_chain_id"`
}

// WalletEvent is emitted whenever the wallet session or network changes,
// whether a provider event or a poll noticed it.
type WalletEvent struct {
	Session WalletSession `json:"session"`
	Network NetworkState  `json:"network"`
	Source  string        `json:"source"` // connect, disconnect, poll, event, switch
}

// ShortAddress renders 0x1234...abcd.
func ShortAddress(addr string) string {
	if len(addr) <= 10 {
		return addr
	}
	return addr[:6] + "..." + addr[len(addr)-4:]
}
