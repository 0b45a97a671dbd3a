package wallet

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// fakeProvider is a scriptable Provider. Unset funcs succeed with zero
// values.
type fakeProvider struct {
	mu    sync.Mutex
	calls []string

	requestAccounts func() ([]string, error)
	accounts        func() ([]string, error)
	chainID         func() (uint64, error)
	switchChain     func(uint64) error
	addChain        func(ChainDescriptor) error
	estimateGas     func(Transaction) (uint64, error)
	sendTransaction func(Transaction) (common.Hash, error)
	receipt         func(common.Hash) (*Receipt, error)
	call            func(Transaction) ([]byte, error)
	subscribe       func(chan<- uint64) (Subscription, error)
}

func (f *fakeProvider) record(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
}

func (f *fakeProvider) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeProvider) RequestAccounts(context.Context) ([]string, error) {
	f.record("RequestAccounts")
	if f.requestAccounts == nil {
		return nil, nil
	}
	return f.requestAccounts()
}

func (f *fakeProvider) Accounts(context.Context) ([]string, error) {
	f.record("Accounts")
	if f.accounts == nil {
		return nil, nil
	}
	return f.accounts()
}

func (f *fakeProvider) ChainID(context.Context) (uint64, error) {
	f.record("ChainID")
	if f.chainID == nil {
		return 0, nil
	}
	return f.chainID()
}

func (f *fakeProvider) SwitchChain(_ context.Context, id uint64) error {
	f.record("SwitchChain")
	if f.switchChain == nil {
		return nil
	}
	return f.switchChain(id)
}

func (f *fakeProvider) AddChain(_ context.Context, d ChainDescriptor) error {
	f.record("AddChain")
	if f.addChain == nil {
		return nil
	}
	return f.addChain(d)
}

func (f *fakeProvider) EstimateGas(_ context.Context, tx Transaction) (uint64, error) {
	f.record("EstimateGas")
	if f.estimateGas == nil {
		return 0, nil
	}
	return f.estimateGas(tx)
}

func (f *fakeProvider) SendTransaction(_ context.Context, tx Transaction) (common.Hash, error) {
	f.record("SendTransaction")
	if f.sendTransaction == nil {
		return common.Hash{}, nil
	}
	return f.sendTransaction(tx)
}

func (f *fakeProvider) TransactionReceipt(_ context.Context, h common.Hash) (*Receipt, error) {
	f.record("TransactionReceipt")
	if f.receipt == nil {
		return nil, nil
	}
	return f.receipt(h)
}

func (f *fakeProvider) Call(_ context.Context, tx Transaction) ([]byte, error) {
	f.record("Call")
	if f.call == nil {
		return nil, nil
	}
	return f.call(tx)
}

func (f *fakeProvider) SubscribeChainChanged(_ context.Context, ch chan<- uint64) (Subscription, error) {
	f.record("SubscribeChainChanged")
	if f.subscribe == nil {
		return nil, ErrSubscriptionUnsupported
	}
	return f.subscribe(ch)
}

type fakeSubscription struct {
	errc chan error
	once sync.Once
}

func newFakeSubscription() *fakeSubscription {
	return &fakeSubscription{errc: make(chan error, 1)}
}

func (s *fakeSubscription) Unsubscribe()      { s.once.Do(func() { close(s.errc) }) }
func (s *fakeSubscription) Err() <-chan error { return s.errc }
