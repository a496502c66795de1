package ledger

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// managerABI is the subset of the VoucherManager contract the sponsor uses.
// forceBatch applies every call and keeps going when one of them reverts.
const managerABI = `[
  {"type":"function","name":"issue","stateMutability":"nonpayable",
   "inputs":[
     {"name":"spender","type":"address"},
     {"name":"balance","type":"uint256"},
     {"name":"duration","type":"uint32"},
     {"name":"programs","type":"address[]"},
     {"name":"salt","type":"bytes32"}],
   "outputs":[{"name":"voucherId","type":"bytes32"}]},
  {"type":"function","name":"update","stateMutability":"nonpayable",
   "inputs":[
     {"name":"spender","type":"address"},
     {"name":"voucherId","type":"bytes32"},
     {"name":"prolongDuration","type":"uint32"},
     {"name":"balanceTopUp","type":"uint256"}],
   "outputs":[]},
  {"type":"function","name":"forceBatch","stateMutability":"nonpayable",
   "inputs":[{"name":"calls","type":"bytes[]"}],
   "outputs":[{"name":"results","type":"bool[]"}]},
  {"type":"function","name":"vouchersOf","stateMutability":"view",
   "inputs":[{"name":"spender","type":"address"},{"name":"program","type":"address"}],
   "outputs":[{"name":"","type":"bytes32[]"}]},
  {"type":"function","name":"isExpired","stateMutability":"view",
   "inputs":[{"name":"spender","type":"address"},{"name":"voucherId","type":"bytes32"}],
   "outputs":[{"name":"","type":"bool"}]},
  {"type":"function","name":"balanceOf","stateMutability":"view",
   "inputs":[{"name":"voucherId","type":"bytes32"}],
   "outputs":[{"name":"","type":"uint256"}]}
]`

var parsedManagerABI = mustParseABI(managerABI)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic("ledger: invalid manager ABI: " + err.Error())
	}
	return parsed
}
