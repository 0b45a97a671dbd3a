package wallet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"cinema-booking/internal/status"
	"cinema-booking/models"
)

// NetworkConfig is the chain payments must happen on.
type NetworkConfig struct {
	ChainID     uint64
	Name        string
	Currency    Currency
	RPCURL      string
	ExplorerURL string
}

func SepoliaNetwork() NetworkConfig {
	return NetworkConfig{
		ChainID:     11155111,
		Name:        "Sepolia",
		Currency:    Currency{Name: "ETH", Symbol: "ETH", Decimals: 18},
		RPCURL:      "https://rpc.sepolia.org/",
		ExplorerURL: "https://sepolia.etherscan.io/",
	}
}

func (n NetworkConfig) Descriptor() ChainDescriptor {
	d := ChainDescriptor{
		ChainID:        n.ChainID,
		ChainName:      n.Name,
		NativeCurrency: n.Currency,
	}
	if n.RPCURL != "" {
		d.RPCURLs = []string{n.RPCURL}
	}
	if n.ExplorerURL != "" {
		d.BlockExplorerURLs = []string{n.ExplorerURL}
	}
	return d
}

type MonitorOption func(*Monitor)

func WithPollInterval(d time.Duration) MonitorOption {
	return func(m *Monitor) {
		if d > 0 {
			m.pollInterval = d
		}
	}
}

// WithPollObserver is called after every connection poll with its outcome
// (ok, disconnected, changed, stale, error).
func WithPollObserver(fn func(outcome string)) MonitorOption {
	return func(m *Monitor) { m.onPoll = fn }
}

// Monitor owns the wallet session. Readers get the last known state; only
// the monitor's own operations and its Run loop mutate it.
type Monitor struct {
	provider     Provider
	network      NetworkConfig
	pollInterval time.Duration
	onPoll       func(string)

	mu      sync.RWMutex
	session models.WalletSession
	state   models.NetworkState

	subsMu sync.Mutex
	subs   map[int]chan models.WalletEvent
	nextID int
}

// NewMonitor accepts a nil provider; every wallet operation then fails
// with status.ErrWalletUnavailable.
func NewMonitor(provider Provider, network NetworkConfig, opts ...MonitorOption) *Monitor {
	m := &Monitor{
		provider:     provider,
		network:      network,
		pollInterval: 2 * time.Second,
		state:        models.NetworkUnknown,
		subs:         make(map[int]chan models.WalletEvent),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Monitor) Network() NetworkConfig { return m.network }

func (m *Monitor) Available() bool { return m.provider != nil }

func (m *Monitor) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session.Connected
}

// Address is empty while disconnected.
func (m *Monitor) Address() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session.Address
}

func (m *Monitor) Session() models.WalletSession {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session
}

func (m *Monitor) NetworkState() models.NetworkState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Connect requests account access and adopts the first account.
func (m *Monitor) Connect(ctx context.Context) (string, error) {
	if m.provider == nil {
		return "", fmt.Errorf("Connect: %w", status.ErrWalletUnavailable)
	}

	accounts, err := m.provider.RequestAccounts(ctx)
	if err != nil {
		if IsUserRejection(err) {
			return "", fmt.Errorf("Connect: %w: %v", status.ErrWalletRejected, err)
		}
		return "", fmt.Errorf("Connect: %w: %v", status.ErrWalletConnection, err)
	}
	if len(accounts) == 0 {
		return "", fmt.Errorf("Connect: %w: no accounts found, unlock the wallet", status.ErrWalletRejected)
	}

	address := accounts[0]

	// chain is best effort here; CheckNetwork reports failures
	chainID, err := m.provider.ChainID(ctx)
	if err != nil {
		slog.Warn("wallet connected without chain id", "error", err)
		chainID = 0
	}

	m.mu.Lock()
	m.session = models.WalletSession{Connected: true, Address: address, ChainID: chainID}
	m.state = models.NetworkUnknown
	m.mu.Unlock()

	slog.Info("wallet connected", "address", models.ShortAddress(address), "chain_id", chainID)
	m.emit("connect")
	return address, nil
}

// Disconnect forgets the local session. Wallets cannot be told to revoke
// access, so nothing is sent to the provider.
func (m *Monitor) Disconnect() {
	m.mu.Lock()
	wasConnected := m.session.Connected
	m.session = models.WalletSession{}
	m.state = models.NetworkUnknown
	m.mu.Unlock()

	if wasConnected {
		slog.Info("wallet disconnected")
		m.emit("disconnect")
	}
}

func (m *Monitor) CheckNetwork(ctx context.Context) (models.NetworkStatus, error) {
	st := models.NetworkStatus{ExpectedChainID: m.network.ChainID}
	if m.provider == nil {
		return st, fmt.Errorf("CheckNetwork: %w", status.ErrWalletUnavailable)
	}

	chainID, err := m.provider.ChainID(ctx)
	if err != nil {
		return st, fmt.Errorf("CheckNetwork: %w: %v", status.ErrWalletConnection, err)
	}

	st.CurrentChainID = chainID
	st.OnExpectedNetwork = chainID == m.network.ChainID
	m.setChain(chainID)
	return st, nil
}

// SwitchNetwork moves the wallet to the expected chain, registering the
// chain first when the wallet does not know it.
func (m *Monitor) SwitchNetwork(ctx context.Context) error {
	if m.provider == nil {
		return fmt.Errorf("SwitchNetwork: %w", status.ErrWalletUnavailable)
	}

	err := m.provider.SwitchChain(ctx, m.network.ChainID)
	if ErrorCode(err) == CodeUnrecognizedChain {
		slog.Info("wallet does not know the chain, adding it", "chain_id", m.network.ChainID, "name", m.network.Name)
		if addErr := m.provider.AddChain(ctx, m.network.Descriptor()); addErr != nil {
			return fmt.Errorf("SwitchNetwork: add chain %d: %w: %v", m.network.ChainID, status.ErrNetworkSwitch, addErr)
		}
		err = m.provider.SwitchChain(ctx, m.network.ChainID)
	}
	if err != nil {
		return fmt.Errorf("SwitchNetwork: %w: %v", status.ErrNetworkSwitch, err)
	}

	m.setChain(m.network.ChainID)
	m.emit("switch")
	return nil
}

// EnsureNetwork switches only when the wallet is on another chain.
func (m *Monitor) EnsureNetwork(ctx context.Context) error {
	st, err := m.CheckNetwork(ctx)
	if err != nil {
		return err
	}
	if st.OnExpectedNetwork {
		return nil
	}
	return m.SwitchNetwork(ctx)
}

func (m *Monitor) setChain(chainID uint64) {
	state := models.NetworkWrong
	if chainID == m.network.ChainID {
		state = models.NetworkExpected
	}

	m.mu.Lock()
	m.session.ChainID = chainID
	if m.session.Connected {
		m.state = state
	}
	m.mu.Unlock()
}

// Subscribe returns a channel of session changes and a func to stop
// receiving. Slow receivers miss events rather than block the monitor.
func (m *Monitor) Subscribe() (<-chan models.WalletEvent, func()) {
	ch := make(chan models.WalletEvent, 16)

	m.subsMu.Lock()
	id := m.nextID
	m.nextID++
	m.subs[id] = ch
	m.subsMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.subsMu.Lock()
			delete(m.subs, id)
			m.subsMu.Unlock()
			close(ch)
		})
	}
}

func (m *Monitor) emit(source string) {
	m.mu.RLock()
	ev := models.WalletEvent{Session: m.session, Network: m.state, Source: source}
	m.mu.RUnlock()

	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for _, ch := range m.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Run keeps the session in step with the wallet until ctx is done. Chain
// changes come from the provider's events when it has them; account state
// is always polled.
func (m *Monitor) Run(ctx context.Context) error {
	if m.provider == nil {
		<-ctx.Done()
		return nil
	}

	chains := make(chan uint64, 4)
	pollChain := false
	sub, err := m.provider.SubscribeChainChanged(ctx, chains)
	switch {
	case errors.Is(err, ErrSubscriptionUnsupported):
		pollChain = true
	case err != nil:
		slog.Warn("chain change subscription failed, polling instead", "error", err)
		pollChain = true
	default:
		defer sub.Unsubscribe()
	}

	var subErr <-chan error
	if sub != nil {
		subErr = sub.Err()
	}

	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case chainID := <-chains:
			m.onChainChanged(chainID, "event")

		case err := <-subErr:
			if err != nil {
				slog.Warn("chain change subscription dropped, polling instead", "error", err)
			}
			subErr = nil
			pollChain = true

		case <-ticker.C:
			m.poll(ctx, pollChain)
		}
	}
}

func (m *Monitor) onChainChanged(chainID uint64, source string) {
	m.mu.RLock()
	prev := m.session.ChainID
	connected := m.session.Connected
	m.mu.RUnlock()

	if !connected || prev == chainID {
		return
	}

	m.setChain(chainID)
	slog.Info("wallet chain changed", "from", prev, "to", chainID, "source", source)
	m.emit(source)
}

func (m *Monitor) poll(ctx context.Context, pollChain bool) {
	if !m.IsConnected() {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, m.pollInterval)
	defer cancel()

	outcome := m.pollAccounts(ctx)
	if m.onPoll != nil {
		m.onPoll(outcome)
	}

	if pollChain && m.IsConnected() {
		chainID, err := m.provider.ChainID(ctx)
		if err != nil {
			slog.Debug("wallet chain poll failed", "error", err)
			return
		}
		m.onChainChanged(chainID, "poll")
	}
}

func (m *Monitor) pollAccounts(ctx context.Context) string {
	accounts, err := m.provider.Accounts(ctx)
	if err != nil {
		slog.Debug("wallet account poll failed", "error", err)
		return "error"
	}

	// the session may have been dropped while Accounts was in flight
	m.mu.Lock()
	if !m.session.Connected {
		m.mu.Unlock()
		return "stale"
	}
	if len(accounts) == 0 {
		m.session = models.WalletSession{}
		m.state = models.NetworkUnknown
		m.mu.Unlock()
		slog.Info("wallet disconnected by provider")
		m.emit("poll")
		return "disconnected"
	}

	changed := !strings.EqualFold(m.session.Address, accounts[0])
	if changed {
		m.session.Address = accounts[0]
	}
	m.mu.Unlock()

	if changed {
		slog.Info("wallet account changed", "address", models.ShortAddress(accounts[0]))
		m.emit("poll")
		return "changed"
	}
	return "ok"
}
