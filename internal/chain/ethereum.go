// internal/chain/ethereum.go
package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"
)

const (
	// Explicit premium over the node's gas suggestion to prioritize
	// inclusion: 1.2x.
	gasPremiumNum = 12
	gasPremiumDen = 10

	approveGasLimit = uint64(80_000)
	swapGasLimit    = uint64(350_000)

	confirmPollInterval = 2 * time.Second
	confirmTimeout      = 3 * time.Minute
)

// Contract ABIs, venue side only: the factory event we subscribe to,
// pair reserve reads, router quotes/swaps and ERC-20 approvals.
var (
	factoryABI abi.ABI
	pairABI    abi.ABI
	routerABI  abi.ABI
	erc20ABI   abi.ABI

	pairCreatedTopic common.Hash
)

func init() {
	var err error

	factoryABI, err = abi.JSON(strings.NewReader(`[
		{
			"name": "PairCreated",
			"type": "event",
			"inputs": [
				{"name": "token0", "type": "address", "indexed": true},
				{"name": "token1", "type": "address", "indexed": true},
				{"name": "pair", "type": "address", "indexed": false},
				{"name": "", "type": "uint256", "indexed": false}
			]
		}
	]`))
	if err != nil {
		panic(fmt.Sprintf("invalid factory ABI: %v", err))
	}

	pairABI, err = abi.JSON(strings.NewReader(`[
		{
			"name": "getReserves",
			"type": "function",
			"stateMutability": "view",
			"inputs": [],
			"outputs": [
				{"name": "reserve0", "type": "uint112"},
				{"name": "reserve1", "type": "uint112"},
				{"name": "blockTimestampLast", "type": "uint32"}
			]
		},
		{
			"name": "token0",
			"type": "function",
			"stateMutability": "view",
			"inputs": [],
			"outputs": [{"name": "", "type": "address"}]
		}
	]`))
	if err != nil {
		panic(fmt.Sprintf("invalid pair ABI: %v", err))
	}

	routerABI, err = abi.JSON(strings.NewReader(`[
		{
			"name": "getAmountsOut",
			"type": "function",
			"stateMutability": "view",
			"inputs": [
				{"name": "amountIn", "type": "uint256"},
				{"name": "path", "type": "address[]"}
			],
			"outputs": [{"name": "amounts", "type": "uint256[]"}]
		},
		{
			"name": "swapExactETHForTokens",
			"type": "function",
			"stateMutability": "payable",
			"inputs": [
				{"name": "amountOutMin", "type": "uint256"},
				{"name": "path", "type": "address[]"},
				{"name": "to", "type": "address"},
				{"name": "deadline", "type": "uint256"}
			],
			"outputs": [{"name": "amounts", "type": "uint256[]"}]
		},
		{
			"name": "swapExactTokensForETH",
			"type": "function",
			"stateMutability": "nonpayable",
			"inputs": [
				{"name": "amountIn", "type": "uint256"},
				{"name": "amountOutMin", "type": "uint256"},
				{"name": "path", "type": "address[]"},
				{"name": "to", "type": "address"},
				{"name": "deadline", "type": "uint256"}
			],
			"outputs": [{"name": "amounts", "type": "uint256[]"}]
		}
	]`))
	if err != nil {
		panic(fmt.Sprintf("invalid router ABI: %v", err))
	}

	erc20ABI, err = abi.JSON(strings.NewReader(`[
		{
			"name": "approve",
			"type": "function",
			"stateMutability": "nonpayable",
			"inputs": [
				{"name": "spender", "type": "address"},
				{"name": "amount", "type": "uint256"}
			],
			"outputs": [{"name": "", "type": "bool"}]
		},
		{
			"name": "balanceOf",
			"type": "function",
			"stateMutability": "view",
			"inputs": [{"name": "account", "type": "address"}],
			"outputs": [{"name": "", "type": "uint256"}]
		}
	]`))
	if err != nil {
		panic(fmt.Sprintf("invalid erc20 ABI: %v", err))
	}

	pairCreatedTopic = crypto.Keccak256Hash([]byte("PairCreated(address,address,address,uint256)"))
}

// Client implements Chain on top of a go-ethereum node connection.
type Client struct {
	eth     *ethclient.Client
	logger  *zap.Logger
	factory common.Address
	router  common.Address
	base    common.Address

	key    *ecdsa.PrivateKey
	from   common.Address
	signer types.Signer

	// Serializes nonce fetch + submit so concurrent entries and exits
	// never reuse a nonce.
	submitMu sync.Mutex
}

type ClientConfig struct {
	NodeURL    string
	ChainID    int64
	Factory    common.Address
	Router     common.Address
	Base       common.Address
	PrivateKey string
}

func NewClient(ctx context.Context, cfg ClientConfig, logger *zap.Logger) (*Client, error) {
	key, err := crypto.HexToECDSA(cfg.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	eth, err := ethclient.DialContext(ctx, cfg.NodeURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial node: %w", err)
	}

	return &Client{
		eth:     eth,
		logger:  logger.Named("chain"),
		factory: cfg.Factory,
		router:  cfg.Router,
		base:    cfg.Base,
		key:     key,
		from:    crypto.PubkeyToAddress(key.PublicKey),
		signer:  types.LatestSignerForChainID(big.NewInt(cfg.ChainID)),
	}, nil
}

// From returns the signing wallet address.
func (c *Client) From() common.Address { return c.from }

func (c *Client) Close() { c.eth.Close() }

// DecodePairCreated converts a raw factory log into a PairCreated
// event. token0/token1 are indexed topics, pair is the first data
// word.
func DecodePairCreated(vLog types.Log) (PairCreated, error) {
	if len(vLog.Topics) < 3 {
		return PairCreated{}, fmt.Errorf("unexpected topics len=%d", len(vLog.Topics))
	}
	if vLog.Topics[0] != pairCreatedTopic {
		return PairCreated{}, fmt.Errorf("unexpected event signature %s", vLog.Topics[0])
	}
	if len(vLog.Data) < 32 {
		return PairCreated{}, fmt.Errorf("unexpected data len=%d", len(vLog.Data))
	}
	return PairCreated{
		Token0:      common.BytesToAddress(vLog.Topics[1].Bytes()),
		Token1:      common.BytesToAddress(vLog.Topics[2].Bytes()),
		Pair:        common.BytesToAddress(vLog.Data[:32]),
		BlockNumber: vLog.BlockNumber,
		TxHash:      vLog.TxHash,
	}, nil
}

func (c *Client) pairCreatedQuery(fromBlock, toBlock *big.Int) ethereum.FilterQuery {
	return ethereum.FilterQuery{
		FromBlock: fromBlock,
		ToBlock:   toBlock,
		Addresses: []common.Address{c.factory},
		Topics:    [][]common.Hash{{pairCreatedTopic}},
	}
}

type logSubscription struct {
	sub  ethereum.Subscription
	done chan struct{}
}

func (s *logSubscription) Err() <-chan error { return s.sub.Err() }
func (s *logSubscription) Unsubscribe() {
	s.sub.Unsubscribe()
	close(s.done)
}

func (c *Client) SubscribePairCreated(ctx context.Context, sink chan<- PairCreated) (Subscription, error) {
	logs := make(chan types.Log, 64)
	sub, err := c.eth.SubscribeFilterLogs(ctx, c.pairCreatedQuery(nil, nil), logs)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to factory logs: %w", err)
	}

	wrapped := &logSubscription{sub: sub, done: make(chan struct{})}
	go func() {
		for {
			select {
			case <-wrapped.done:
				return
			case vLog := <-logs:
				if vLog.Removed {
					continue
				}
				event, err := DecodePairCreated(vLog)
				if err != nil {
					c.logger.Warn("Dropping malformed factory log",
						zap.String("tx", vLog.TxHash.Hex()), zap.Error(err))
					continue
				}
				select {
				case sink <- event:
				case <-wrapped.done:
					return
				}
			}
		}
	}()

	return wrapped, nil
}

func (c *Client) FilterPairCreated(ctx context.Context, fromBlock, toBlock uint64) ([]PairCreated, error) {
	query := c.pairCreatedQuery(new(big.Int).SetUint64(fromBlock), new(big.Int).SetUint64(toBlock))
	logs, err := c.eth.FilterLogs(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to filter factory logs: %w", err)
	}

	events := make([]PairCreated, 0, len(logs))
	for _, vLog := range logs {
		if vLog.Removed {
			continue
		}
		event, err := DecodePairCreated(vLog)
		if err != nil {
			c.logger.Warn("Dropping malformed factory log",
				zap.String("tx", vLog.TxHash.Hex()), zap.Error(err))
			continue
		}
		events = append(events, event)
	}
	return events, nil
}

func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	return c.eth.BlockNumber(ctx)
}

func (c *Client) call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	return c.eth.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
}

func (c *Client) GetReserves(ctx context.Context, pair common.Address) (*Reserves, error) {
	data, err := pairABI.Pack("getReserves")
	if err != nil {
		return nil, err
	}
	out, err := c.call(ctx, pair, data)
	if err != nil {
		return nil, fmt.Errorf("getReserves call failed: %w", err)
	}
	values, err := pairABI.Unpack("getReserves", out)
	if err != nil {
		return nil, fmt.Errorf("getReserves decode failed: %w", err)
	}

	token0Data, err := pairABI.Pack("token0")
	if err != nil {
		return nil, err
	}
	out, err = c.call(ctx, pair, token0Data)
	if err != nil {
		return nil, fmt.Errorf("token0 call failed: %w", err)
	}
	token0Values, err := pairABI.Unpack("token0", out)
	if err != nil {
		return nil, fmt.Errorf("token0 decode failed: %w", err)
	}

	return &Reserves{
		Reserve0: values[0].(*big.Int),
		Reserve1: values[1].(*big.Int),
		Token0:   token0Values[0].(common.Address),
	}, nil
}

func (c *Client) QuoteOut(ctx context.Context, amountIn *big.Int, path []common.Address) (*big.Int, error) {
	data, err := routerABI.Pack("getAmountsOut", amountIn, path)
	if err != nil {
		return nil, err
	}
	out, err := c.call(ctx, c.router, data)
	if err != nil {
		return nil, fmt.Errorf("getAmountsOut call failed: %w", err)
	}
	values, err := routerABI.Unpack("getAmountsOut", out)
	if err != nil {
		return nil, fmt.Errorf("getAmountsOut decode failed: %w", err)
	}
	amounts, ok := values[0].([]*big.Int)
	if !ok || len(amounts) == 0 {
		return nil, errors.New("getAmountsOut returned no amounts")
	}
	return amounts[len(amounts)-1], nil
}

func (c *Client) PremiumGasPrice(ctx context.Context) (*big.Int, error) {
	suggested, err := c.eth.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get gas price suggestion: %w", err)
	}
	premium := new(big.Int).Mul(suggested, big.NewInt(gasPremiumNum))
	return premium.Div(premium, big.NewInt(gasPremiumDen)), nil
}

// submit builds, signs and sends a legacy transaction under the
// submit lock.
func (c *Client) submit(ctx context.Context, to common.Address, value *big.Int, gasLimit uint64, gasPrice *big.Int, data []byte) (common.Hash, error) {
	c.submitMu.Lock()
	defer c.submitMu.Unlock()

	nonce, err := c.eth.PendingNonceAt(ctx, c.from)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to get nonce: %w", err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    value,
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})

	signed, err := types.SignTx(tx, c.signer, c.key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err := c.eth.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("failed to send transaction: %w", err)
	}

	c.logger.Debug("Transaction submitted",
		zap.String("tx", signed.Hash().Hex()),
		zap.Uint64("nonce", nonce),
		zap.String("gas_price", gasPrice.String()))

	return signed.Hash(), nil
}

func (c *Client) Approve(ctx context.Context, token common.Address, amount, gasPrice *big.Int) (common.Hash, error) {
	data, err := erc20ABI.Pack("approve", c.router, amount)
	if err != nil {
		return common.Hash{}, err
	}
	return c.submit(ctx, token, big.NewInt(0), approveGasLimit, gasPrice, data)
}

func (c *Client) SwapBaseForToken(ctx context.Context, token common.Address, amountIn, amountOutMin *big.Int, deadline time.Time, gasPrice *big.Int) (common.Hash, error) {
	path := []common.Address{c.base, token}
	data, err := routerABI.Pack("swapExactETHForTokens",
		amountOutMin, path, c.from, big.NewInt(deadline.Unix()))
	if err != nil {
		return common.Hash{}, err
	}
	return c.submit(ctx, c.router, amountIn, swapGasLimit, gasPrice, data)
}

func (c *Client) SwapTokenForBase(ctx context.Context, token common.Address, amountOutMin *big.Int, deadline time.Time, gasPrice *big.Int) (common.Hash, error) {
	balance, err := c.tokenBalance(ctx, token)
	if err != nil {
		return common.Hash{}, err
	}
	if balance.Sign() == 0 {
		return common.Hash{}, fmt.Errorf("zero balance for token %s", token.Hex())
	}

	path := []common.Address{token, c.base}
	data, err := routerABI.Pack("swapExactTokensForETH",
		balance, amountOutMin, path, c.from, big.NewInt(deadline.Unix()))
	if err != nil {
		return common.Hash{}, err
	}
	return c.submit(ctx, c.router, big.NewInt(0), swapGasLimit, gasPrice, data)
}

func (c *Client) tokenBalance(ctx context.Context, token common.Address) (*big.Int, error) {
	data, err := erc20ABI.Pack("balanceOf", c.from)
	if err != nil {
		return nil, err
	}
	out, err := c.call(ctx, token, data)
	if err != nil {
		return nil, fmt.Errorf("balanceOf call failed: %w", err)
	}
	values, err := erc20ABI.Unpack("balanceOf", out)
	if err != nil {
		return nil, fmt.Errorf("balanceOf decode failed: %w", err)
	}
	return values[0].(*big.Int), nil
}

// WaitConfirmed polls for the receipt until the transaction mines,
// reverts, or the bounded wait expires. A wait that never resolves
// surfaces as an error instead of hanging the caller.
func (c *Client) WaitConfirmed(ctx context.Context, txHash common.Hash) error {
	waitCtx, cancel := context.WithTimeout(ctx, confirmTimeout)
	defer cancel()

	ticker := time.NewTicker(confirmPollInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.eth.TransactionReceipt(waitCtx, txHash)
		if err == nil {
			if receipt.Status != types.ReceiptStatusSuccessful {
				return fmt.Errorf("transaction %s reverted", txHash.Hex())
			}
			return nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			c.logger.Debug("Receipt poll failed", zap.String("tx", txHash.Hex()), zap.Error(err))
		}

		select {
		case <-waitCtx.Done():
			return fmt.Errorf("confirmation wait for %s expired: %w", txHash.Hex(), waitCtx.Err())
		case <-ticker.C:
		}
	}
}
