package chain

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/openpredict/marketd/internal/domain"
)

// ExecutorConfig holds connection and signing parameters for the settlement
// executor.
type ExecutorConfig struct {
	// RPCURL is the EVM JSON-RPC endpoint.
	RPCURL string
	// ChainID is the expected network. A node answering with a different
	// chain ID fails every settlement with a network precondition error.
	ChainID int64
	// ContractAddr is the settlement contract receiving the record payload.
	ContractAddr string
	// Key resolves the operator's signing key.
	Key KeyConfig
	// GasLimit caps the settlement transaction. Defaults to 120000.
	GasLimit uint64
}

// record is the settlement payload carried in transaction calldata. The
// contract only archives it; the journal is the source of truth.
type record struct {
	User   string  `json:"user"`
	Market string  `json:"market"`
	Type   string  `json:"type"`
	Option int     `json:"option"`
	Side   string  `json:"side"`
	Amount float64 `json:"amount"`
	Nonce  uint64  `json:"nonce"`
}

// Executor implements domain.SettlementExecutor by submitting one signed
// transaction per intent and returning the transaction hash as the
// settlement reference.
type Executor struct {
	client   *ethclient.Client
	key      *ecdsa.PrivateKey
	from     common.Address
	to       common.Address
	chainID  *big.Int
	gasLimit uint64
	logger   *slog.Logger
}

// NewExecutor dials the RPC endpoint, verifies the chain ID, and loads the
// operator key.
func NewExecutor(ctx context.Context, cfg ExecutorConfig, logger *slog.Logger) (*Executor, error) {
	keyHex, err := LoadKey(cfg.Key)
	if err != nil {
		return nil, err
	}
	key, err := ethcrypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("chain: invalid operator key: %w", err)
	}

	client, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("chain: dial %s: %w", cfg.RPCURL, err)
	}

	chainID, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("chain: query chain id: %w", err)
	}
	if chainID.Int64() != cfg.ChainID {
		client.Close()
		return nil, fmt.Errorf("chain: node reports chain id %d, want %d", chainID.Int64(), cfg.ChainID)
	}

	gasLimit := cfg.GasLimit
	if gasLimit == 0 {
		gasLimit = 120_000
	}

	return &Executor{
		client:   client,
		key:      key,
		from:     ethcrypto.PubkeyToAddress(key.PublicKey),
		to:       common.HexToAddress(cfg.ContractAddr),
		chainID:  chainID,
		gasLimit: gasLimit,
		logger:   logger.With(slog.String("component", "chain")),
	}, nil
}

// Close releases the RPC connection.
func (e *Executor) Close() {
	e.client.Close()
}

// Settle submits the intent as a settlement transaction. The returned
// reference is the transaction hash. Nothing is journaled here; the caller
// records the reference after this returns.
func (e *Executor) Settle(ctx context.Context, intent domain.SettlementIntent) (string, error) {
	fail := func(kind domain.SettlementKind, err error) (string, error) {
		return "", &domain.SettlementError{
			Kind: kind,
			Intent: domain.Intent{
				MarketID:    intent.MarketID,
				UserID:      intent.UserID,
				OptionIndex: intent.OptionIndex,
				Side:        intent.Side,
				Amount:      intent.Amount,
			},
			Err: err,
		}
	}

	// Re-verify the network before spending a nonce. RPC providers can
	// silently fail over to a different backend.
	chainID, err := e.client.ChainID(ctx)
	if err != nil {
		return fail(domain.SettlementNetworkPrecondition, fmt.Errorf("chain: query chain id: %w", err))
	}
	if chainID.Cmp(e.chainID) != 0 {
		return fail(domain.SettlementNetworkPrecondition,
			fmt.Errorf("chain: node reports chain id %d, want %d", chainID.Int64(), e.chainID.Int64()))
	}

	nonce, err := e.client.PendingNonceAt(ctx, e.from)
	if err != nil {
		return fail(classify(ctx, err), fmt.Errorf("chain: pending nonce: %w", err))
	}
	gasPrice, err := e.client.SuggestGasPrice(ctx)
	if err != nil {
		return fail(classify(ctx, err), fmt.Errorf("chain: suggest gas price: %w", err))
	}

	payload, err := json.Marshal(record{
		User:   intent.UserID,
		Market: intent.MarketID,
		Type:   string(intent.Type),
		Option: intent.OptionIndex,
		Side:   string(intent.Side),
		Amount: intent.Amount,
		Nonce:  nonce,
	})
	if err != nil {
		return fail(domain.SettlementFailed, fmt.Errorf("chain: marshal record: %w", err))
	}

	tx := types.NewTransaction(nonce, e.to, big.NewInt(0), e.gasLimit, gasPrice, payload)
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(e.chainID), e.key)
	if err != nil {
		return fail(domain.SettlementFailed, fmt.Errorf("chain: sign tx: %w", err))
	}

	if err := e.client.SendTransaction(ctx, signed); err != nil {
		return fail(classify(ctx, err), fmt.Errorf("chain: send tx: %w", err))
	}

	ref := signed.Hash().Hex()
	e.logger.InfoContext(ctx, "settlement submitted",
		slog.String("market", intent.MarketID),
		slog.String("user", intent.UserID),
		slog.String("type", string(intent.Type)),
		slog.Float64("amount", intent.Amount),
		slog.String("tx_hash", ref),
	)
	return ref, nil
}

// classify maps an RPC error onto the settlement taxonomy. Deadline expiry
// means the outcome is unknown; an explicit node refusal is a rejection;
// anything else is a plain failure.
func classify(ctx context.Context, err error) domain.SettlementKind {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return domain.SettlementTimeout
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "rejected") || strings.Contains(msg, "denied") ||
		strings.Contains(msg, "insufficient funds") || strings.Contains(msg, "underpriced") {
		return domain.SettlementRejected
	}
	return domain.SettlementFailed
}

// Confirm blocks until the settlement transaction is mined or ctx expires,
// reporting whether it succeeded on-chain.
func (e *Executor) Confirm(ctx context.Context, ref string, poll time.Duration) (bool, error) {
	if poll <= 0 {
		poll = 2 * time.Second
	}
	hash := common.HexToHash(ref)

	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		receipt, err := e.client.TransactionReceipt(ctx, hash)
		if err == nil {
			return receipt.Status == types.ReceiptStatusSuccessful, nil
		}

		select {
		case <-ctx.Done():
			return false, fmt.Errorf("chain: confirm %s: %w", ref, ctx.Err())
		case <-ticker.C:
		}
	}
}

// Compile-time interface check.
var _ domain.SettlementExecutor = (*Executor)(nil)
