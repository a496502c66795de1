package voucher

import (
	"github.com/ethereum/go-ethereum/common"
)

// Request is what callers hand to the batching worker. The flag form mirrors
// the public API; Intent turns it into a single unambiguous action.
type Request struct {
	User          common.Address `json:"user_address"`
	VoucherID     *common.Hash   `json:"voucher_id,omitempty"`
	CreateVoucher bool           `json:"create_voucher"`
	AddTokens     bool           `json:"add_tokens"`
	RenewVoucher  bool           `json:"renew_voucher"`
}

// NewCreate builds a request that issues a fresh voucher for user.
func NewCreate(user common.Address) Request {
	return Request{User: user, CreateVoucher: true}
}

// NewUpdate builds a top-up and/or renewal request for an existing voucher.
func NewUpdate(user common.Address, id common.Hash, addTokens, renew bool) Request {
	return Request{
		User:         user,
		VoucherID:    &id,
		AddTokens:    addTokens,
		RenewVoucher: renew,
	}
}

// IntentKind enumerates the actions a request can resolve to.
type IntentKind uint8

const (
	IntentNone IntentKind = iota
	IntentCreate
	IntentTopUp
	IntentRenew
	IntentTopUpAndRenew
)

func (k IntentKind) String() string {
	switch k {
	case IntentNone:
		return "none"
	case IntentCreate:
		return "create"
	case IntentTopUp:
		return "top_up"
	case IntentRenew:
		return "renew"
	case IntentTopUpAndRenew:
		return "top_up_and_renew"
	default:
		return "unknown"
	}
}

// Intent is the tagged form of a Request. VoucherID is zero for IntentCreate.
type Intent struct {
	Kind      IntentKind
	VoucherID common.Hash
}

// Intent validates the flag combination and returns the action it encodes.
// IntentNone means a well-formed update that asks for nothing.
func (r Request) Intent() (Intent, error) {
	if r.CreateVoucher {
		if r.AddTokens || r.RenewVoucher {
			return Intent{}, badRequest("create cannot be combined with top-up or renewal")
		}
		return Intent{Kind: IntentCreate}, nil
	}
	if r.VoucherID == nil {
		return Intent{}, badRequest("voucher id is required for an update")
	}
	in := Intent{VoucherID: *r.VoucherID}
	switch {
	case r.AddTokens && r.RenewVoucher:
		in.Kind = IntentTopUpAndRenew
	case r.AddTokens:
		in.Kind = IntentTopUp
	case r.RenewVoucher:
		in.Kind = IntentRenew
	default:
		in.Kind = IntentNone
	}
	return in, nil
}

// Redis key templates
const (
	InflightKeyFmt      = "voucher:inflight:%s" // %s = user address (lowercase)
	FailedBatchesKeyFmt = "voucher:failed:%s"   // %s = target contract (lowercase)
)
