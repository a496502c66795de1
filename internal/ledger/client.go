package ledger

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"github.com/Vara-Lab/Vara-Gasless-Server/internal/config"
)

// Client wraps go-ethereum and the VoucherManager contract.
type Client struct {
	eth           *ethclient.Client
	manager       *bind.BoundContract
	abi           abi.ABI
	managerAddr   common.Address
	chainID       *big.Int
	sponsorKey    *ecdsa.PrivateKey // nil when SPONSOR_KEY is unset
	finalityDepth uint64
	pollInterval  time.Duration
	log           *zap.Logger
}

func NewClient(cfg *config.Config, log *zap.Logger) (*Client, error) {
	eth, err := ethclient.Dial(cfg.Chain.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}

	var sponsorKey *ecdsa.PrivateKey
	if cfg.Chain.SponsorKey != "" {
		sponsorKey, err = crypto.HexToECDSA(strings.TrimPrefix(cfg.Chain.SponsorKey, "0x"))
		if err != nil {
			eth.Close()
			return nil, fmt.Errorf("parse sponsor key: %w", err)
		}
	}

	addr := common.HexToAddress(cfg.Chain.VoucherManager)
	return &Client{
		eth:           eth,
		manager:       bind.NewBoundContract(addr, parsedManagerABI, eth, eth, eth),
		abi:           parsedManagerABI,
		managerAddr:   addr,
		chainID:       big.NewInt(cfg.Chain.ChainID),
		sponsorKey:    sponsorKey,
		finalityDepth: cfg.Chain.FinalityDepth,
		pollInterval:  time.Duration(cfg.Chain.StatusPollMs) * time.Millisecond,
		log:           log.With(zap.String("component", "ledger")),
	}, nil
}

// Close releases the RPC connection.
func (c *Client) Close() { c.eth.Close() }

// SponsorKey returns the signing key for batch submissions, or nil.
func (c *Client) SponsorKey() *ecdsa.PrivateKey { return c.sponsorKey }

// SponsorAddress returns the sponsor account, if a key is configured.
func (c *Client) SponsorAddress() (common.Address, bool) {
	if c.sponsorKey == nil {
		return common.Address{}, false
	}
	return crypto.PubkeyToAddress(c.sponsorKey.PublicKey), true
}

// ChainID returns the configured chain ID.
func (c *Client) ChainID() *big.Int { return c.chainID }

// ManagerAddress returns the VoucherManager contract address.
func (c *Client) ManagerAddress() common.Address { return c.managerAddr }

// SponsorBalance returns the sponsor's native balance and pending nonce.
func (c *Client) SponsorBalance(ctx context.Context) (*big.Int, uint64, error) {
	addr, ok := c.SponsorAddress()
	if !ok {
		return nil, 0, fmt.Errorf("sponsor key not configured")
	}
	bal, err := c.eth.BalanceAt(ctx, addr, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("balance: %w", err)
	}
	nonce, err := c.eth.PendingNonceAt(ctx, addr)
	if err != nil {
		return nil, 0, fmt.Errorf("pending nonce: %w", err)
	}
	return bal, nonce, nil
}

// transactOpts builds a *bind.TransactOpts signed by key.
func (c *Client) transactOpts(ctx context.Context, key *ecdsa.PrivateKey) (*bind.TransactOpts, error) {
	auth, err := bind.NewKeyedTransactorWithChainID(key, c.chainID)
	if err != nil {
		return nil, err
	}
	auth.Context = ctx
	return auth, nil
}

// SignAndSubmit signs the batch with key, broadcasts it and reports every
// status change to onStatus. It returns once a terminal status was reported
// or ctx is done.
func (c *Client) SignAndSubmit(ctx context.Context, key *ecdsa.PrivateKey, b Batch, onStatus func(TxStatus)) error {
	opts, err := c.transactOpts(ctx, key)
	if err != nil {
		return fmt.Errorf("build tx opts: %w", err)
	}

	tx, err := c.manager.RawTransact(opts, b.CallData)
	if err != nil {
		onStatus(StatusInvalid)
		return fmt.Errorf("forceBatch tx: %w", err)
	}
	onStatus(StatusBroadcast)

	w := &watcher{
		reader:   c.eth,
		from:     opts.From,
		depth:    c.finalityDepth,
		interval: c.pollInterval,
		onStatus: onStatus,
		log:      c.log,
	}
	return w.wait(ctx, tx)
}

// ── Views ───────────────────────────────────────────────────────────────────

func (c *Client) call(ctx context.Context, method string, args ...any) ([]any, error) {
	var out []any
	if err := c.manager.Call(&bind.CallOpts{Context: ctx}, &out, method, args...); err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s: empty result", method)
	}
	return out, nil
}

// VouchersForProgram lists the vouchers spender holds that may call program.
func (c *Client) VouchersForProgram(ctx context.Context, spender, program common.Address) ([]common.Hash, error) {
	out, err := c.call(ctx, "vouchersOf", spender, program)
	if err != nil {
		return nil, err
	}
	raw, ok := out[0].([][32]byte)
	if !ok {
		return nil, fmt.Errorf("vouchersOf: unexpected result %T", out[0])
	}
	ids := make([]common.Hash, len(raw))
	for i, r := range raw {
		ids[i] = common.Hash(r)
	}
	return ids, nil
}

// VoucherExpired reports whether the voucher has expired. The contract
// reverts when the voucher does not belong to spender.
func (c *Client) VoucherExpired(ctx context.Context, spender common.Address, id common.Hash) (bool, error) {
	out, err := c.call(ctx, "isExpired", spender, [32]byte(id))
	if err != nil {
		return false, err
	}
	expired, ok := out[0].(bool)
	if !ok {
		return false, fmt.Errorf("isExpired: unexpected result %T", out[0])
	}
	return expired, nil
}

// VoucherBalance returns the voucher's remaining balance in the smallest unit.
func (c *Client) VoucherBalance(ctx context.Context, id common.Hash) (*big.Int, error) {
	out, err := c.call(ctx, "balanceOf", [32]byte(id))
	if err != nil {
		return nil, err
	}
	bal, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("balanceOf: unexpected result %T", out[0])
	}
	return bal, nil
}
