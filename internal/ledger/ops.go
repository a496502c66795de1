package ledger

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Vara-Lab/Vara-Gasless-Server/internal/voucher"
)

// OpKind distinguishes the operations the sponsor can batch.
type OpKind uint8

const (
	OpIssue OpKind = iota
	OpUpdate
)

func (k OpKind) String() string {
	switch k {
	case OpIssue:
		return "issue"
	case OpUpdate:
		return "update"
	default:
		return "unknown"
	}
}

// Operation is one prepared, unsigned voucher mutation.
type Operation struct {
	Kind      OpKind
	Spender   common.Address
	VoucherID common.Hash
	CallData  []byte
}

// Issued is the result of preparing an issue: the operation plus the id the
// voucher will have once the operation applies.
type Issued struct {
	Operation Operation
	VoucherID common.Hash
}

// Batch is a single forceBatch call wrapping zero or more operations.
type Batch struct {
	Operations int
	CallData   []byte
}

// IssueVoucher prepares an issue operation for spender.
func (c *Client) IssueVoucher(spender common.Address, balance *big.Int, duration uint32, programs []common.Address) (Issued, error) {
	salt, err := voucher.NewSalt()
	if err != nil {
		return Issued{}, err
	}
	data, err := c.abi.Pack("issue", spender, balance, duration, programs, salt)
	if err != nil {
		return Issued{}, fmt.Errorf("pack issue: %w", err)
	}
	id := voucher.DeriveID(c.managerAddr, spender, salt)
	return Issued{
		Operation: Operation{Kind: OpIssue, Spender: spender, VoucherID: id, CallData: data},
		VoucherID: id,
	}, nil
}

// UpdateVoucher prepares an update operation. Zero fields of upd are sent as
// zero, which the contract treats as "unchanged".
func (c *Client) UpdateVoucher(spender common.Address, id common.Hash, upd voucher.Update) (Operation, error) {
	topUp := upd.BalanceTopUp
	if topUp == nil {
		topUp = new(big.Int)
	}
	data, err := c.abi.Pack("update", spender, [32]byte(id), upd.ProlongDuration, topUp)
	if err != nil {
		return Operation{}, fmt.Errorf("pack update: %w", err)
	}
	return Operation{Kind: OpUpdate, Spender: spender, VoucherID: id, CallData: data}, nil
}

// ForceBatch wraps ops into one forceBatch call. An empty ops slice is valid.
func (c *Client) ForceBatch(ops []Operation) (Batch, error) {
	calls := make([][]byte, len(ops))
	for i, op := range ops {
		calls[i] = op.CallData
	}
	data, err := c.abi.Pack("forceBatch", calls)
	if err != nil {
		return Batch{}, fmt.Errorf("pack forceBatch: %w", err)
	}
	return Batch{Operations: len(ops), CallData: data}, nil
}
