package voucher

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Policy holds the sponsor's voucher economics. Token counts are whole tokens;
// TokenUnit converts them to the ledger's smallest unit.
type Policy struct {
	Program         common.Address // the single contract vouchers may call
	TokenUnit       *big.Int
	InitialTokens   int64
	InitialDuration uint32 // blocks
	TopUpTokens     int64
	RenewalBlocks   uint32
	MinTokens       int64
}

// Update is the payload of an update operation. Zero fields are left unchanged.
type Update struct {
	ProlongDuration uint32
	BalanceTopUp    *big.Int
}

// Prolongs reports whether the update extends the voucher's expiry.
func (u Update) Prolongs() bool { return u.ProlongDuration > 0 }

// TopsUp reports whether the update adds balance.
func (u Update) TopsUp() bool { return u.BalanceTopUp != nil && u.BalanceTopUp.Sign() > 0 }

func (p Policy) tokens(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), p.TokenUnit)
}

// InitialBalance is the balance a freshly issued voucher starts with.
func (p Policy) InitialBalance() *big.Int { return p.tokens(p.InitialTokens) }

// TopUpAmount is the balance one top-up adds.
func (p Policy) TopUpAmount() *big.Int { return p.tokens(p.TopUpTokens) }

// MinBalance is the threshold below which a voucher is topped up.
func (p Policy) MinBalance() *big.Int { return p.tokens(p.MinTokens) }

// AllowedPrograms is the allow-list attached to every issued voucher.
func (p Policy) AllowedPrograms() []common.Address { return []common.Address{p.Program} }

// UpdateFor returns the update payload for an update intent. The second
// result is false for kinds that produce no update operation.
func (p Policy) UpdateFor(kind IntentKind) (Update, bool) {
	switch kind {
	case IntentTopUpAndRenew:
		return Update{ProlongDuration: p.RenewalBlocks, BalanceTopUp: p.TopUpAmount()}, true
	case IntentTopUp:
		return Update{BalanceTopUp: p.TopUpAmount()}, true
	case IntentRenew:
		return Update{ProlongDuration: p.RenewalBlocks}, true
	default:
		return Update{}, false
	}
}
