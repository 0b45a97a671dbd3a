package wallet

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

var _ Provider = (*RPCProvider)(nil)

// RPCProvider speaks the EIP-1193 method set over JSON-RPC, e.g. to a
// remote signer.
type RPCProvider struct {
	client *rpc.Client
}

func Dial(ctx context.Context, url string) (*RPCProvider, error) {
	client, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("wallet.Dial: %w", err)
	}
	return NewRPCProvider(client), nil
}

func NewRPCProvider(client *rpc.Client) *RPCProvider {
	return &RPCProvider{client: client}
}

func (p *RPCProvider) Close() { p.client.Close() }

type txArgs struct {
	From  *common.Address `json:"from,omitempty"`
	To    *common.Address `json:"to,omitempty"`
	Data  hexutil.Bytes   `json:"data,omitempty"`
	Value *hexutil.Big    `json:"value,omitempty"`
	Gas   *hexutil.Uint64 `json:"gas,omitempty"`
}

func toArgs(tx Transaction) txArgs {
	args := txArgs{Data: tx.Data}
	if tx.From != (common.Address{}) {
		from := tx.From
		args.From = &from
	}
	if tx.To != (common.Address{}) {
		to := tx.To
		args.To = &to
	}
	if tx.Value != nil {
		args.Value = (*hexutil.Big)(tx.Value)
	}
	if tx.Gas > 0 {
		gas := hexutil.Uint64(tx.Gas)
		args.Gas = &gas
	}
	return args
}

type rpcReceipt struct {
	TransactionHash common.Hash     `json:"transactionHash"`
	BlockNumber     *hexutil.Big    `json:"blockNumber"`
	Status          *hexutil.Uint64 `json:"status"`
}

type addChainParams struct {
	ChainID           string   `json:"chainId"`
	ChainName         string   `json:"chainName"`
	NativeCurrency    Currency `json:"nativeCurrency"`
	RPCURLs           []string `json:"rpcUrls"`
	BlockExplorerURLs []string `json:"blockExplorerUrls,omitempty"`
}

func (p *RPCProvider) call(ctx context.Context, result any, method string, args ...any) error {
	if err := p.client.CallContext(ctx, result, method, args...); err != nil {
		return fmt.Errorf("%s: %w", method, asProviderError(err))
	}
	return nil
}

func (p *RPCProvider) RequestAccounts(ctx context.Context) ([]string, error) {
	var accounts []string
	err := p.call(ctx, &accounts, "eth_requestAccounts")
	return accounts, err
}

func (p *RPCProvider) Accounts(ctx context.Context) ([]string, error) {
	var accounts []string
	err := p.call(ctx, &accounts, "eth_accounts")
	return accounts, err
}

func (p *RPCProvider) ChainID(ctx context.Context) (uint64, error) {
	var id hexutil.Uint64
	err := p.call(ctx, &id, "eth_chainId")
	return uint64(id), err
}

func (p *RPCProvider) SwitchChain(ctx context.Context, chainID uint64) error {
	return p.call(ctx, nil, "wallet_switchEthereumChain", map[string]string{
		"chainId": hexutil.EncodeUint64(chainID),
	})
}

func (p *RPCProvider) AddChain(ctx context.Context, chain ChainDescriptor) error {
	return p.call(ctx, nil, "wallet_addEthereumChain", addChainParams{
		ChainID:           hexutil.EncodeUint64(chain.ChainID),
		ChainName:         chain.ChainName,
		NativeCurrency:    chain.NativeCurrency,
		RPCURLs:           chain.RPCURLs,
		BlockExplorerURLs: chain.BlockExplorerURLs,
	})
}

func (p *RPCProvider) EstimateGas(ctx context.Context, tx Transaction) (uint64, error) {
	var gas hexutil.Uint64
	err := p.call(ctx, &gas, "eth_estimateGas", toArgs(tx))
	return uint64(gas), err
}

func (p *RPCProvider) SendTransaction(ctx context.Context, tx Transaction) (common.Hash, error) {
	var hash common.Hash
	err := p.call(ctx, &hash, "eth_sendTransaction", toArgs(tx))
	return hash, err
}

func (p *RPCProvider) TransactionReceipt(ctx context.Context, hash common.Hash) (*Receipt, error) {
	var r *rpcReceipt
	if err := p.call(ctx, &r, "eth_getTransactionReceipt", hash); err != nil {
		return nil, err
	}
	if r == nil || r.BlockNumber == nil {
		return nil, nil
	}

	receipt := &Receipt{
		TxHash:      r.TransactionHash,
		BlockNumber: r.BlockNumber.ToInt().Uint64(),
		Status:      1,
	}
	if r.Status != nil {
		receipt.Status = uint64(*r.Status)
	}
	return receipt, nil
}

func (p *RPCProvider) Call(ctx context.Context, tx Transaction) ([]byte, error) {
	var out hexutil.Bytes
	err := p.call(ctx, &out, "eth_call", toArgs(tx), "latest")
	return out, err
}

// SubscribeChainChanged subscribes to wallet_subscribe("chainChanged").
// Transports without notifications (plain HTTP) report unsupported.
func (p *RPCProvider) SubscribeChainChanged(ctx context.Context, ch chan<- uint64) (Subscription, error) {
	raw := make(chan hexutil.Uint64)
	sub, err := p.client.Subscribe(ctx, "wallet", raw, "chainChanged")
	if err != nil {
		if errors.Is(err, rpc.ErrNotificationsUnsupported) || ErrorCode(err) == CodeMethodNotFound {
			return nil, ErrSubscriptionUnsupported
		}
		return nil, fmt.Errorf("wallet_subscribe: %w", asProviderError(err))
	}

	go func() {
		for {
			select {
			case id := <-raw:
				select {
				case ch <- uint64(id):
				case <-sub.Err():
					return
				}
			case <-sub.Err():
				return
			}
		}
	}()
	return sub, nil
}

func asProviderError(err error) error {
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return &ProviderError{Code: rpcErr.ErrorCode(), Message: rpcErr.Error()}
	}
	return err
}
