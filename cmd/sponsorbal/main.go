// cmd/sponsorbal/main.go prints the sponsor account's balance and nonce and,
// optionally, the vouchers a user holds for the configured program.
//
// Usage:
//
//	go run ./cmd/sponsorbal/
//	go run ./cmd/sponsorbal/ --user 0x...
//	go run ./cmd/sponsorbal/ --user 0x... --voucher 0x...
//
// Reads the same environment as the server (NETWORK, CHAIN_ID, VOUCHER_MANAGER, ...).
package main

import (
	"context"
	"flag"
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/params"
	"go.uber.org/zap"

	"github.com/Vara-Lab/Vara-Gasless-Server/internal/config"
	"github.com/Vara-Lab/Vara-Gasless-Server/internal/ledger"
)

func main() {
	user := flag.String("user", "", "user address to inspect")
	voucherID := flag.String("voucher", "", "voucher id to inspect (requires --user)")
	flag.Parse()

	if err := run(*user, *voucherID); err != nil {
		fmt.Fprintln(os.Stderr, "sponsorbal:", err)
		os.Exit(1)
	}
}

func run(user, voucherID string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	policy, err := cfg.Policy()
	if err != nil {
		return err
	}
	c, err := ledger.NewClient(cfg, zap.NewNop())
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	fmt.Printf("manager:   %s\n", c.ManagerAddress().Hex())
	fmt.Printf("program:   %s\n", policy.Program.Hex())
	if addr, ok := c.SponsorAddress(); ok {
		bal, nonce, err := c.SponsorBalance(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("sponsor:   %s\n", addr.Hex())
		fmt.Printf("balance:   %s wei (%s ether)\n", bal, weiToEther(bal))
		fmt.Printf("nonce:     %d\n", nonce)
	} else {
		fmt.Println("sponsor:   (SPONSOR_KEY not set)")
	}

	if user == "" {
		return nil
	}
	if !common.IsHexAddress(user) {
		return fmt.Errorf("invalid --user %q", user)
	}
	spender := common.HexToAddress(user)

	if voucherID == "" {
		ids, err := c.VouchersForProgram(ctx, spender, policy.Program)
		if err != nil {
			return err
		}
		fmt.Printf("vouchers:  %d\n", len(ids))
		for _, id := range ids {
			fmt.Printf("  %s\n", id.Hex())
		}
		return nil
	}

	id := common.HexToHash(voucherID)
	expired, err := c.VoucherExpired(ctx, spender, id)
	if err != nil {
		return fmt.Errorf("voucher is not linked to user address: %w", err)
	}
	bal, err := c.VoucherBalance(ctx, id)
	if err != nil {
		return err
	}
	fmt.Printf("voucher:   %s\n", id.Hex())
	fmt.Printf("expired:   %t\n", expired)
	fmt.Printf("balance:   %s (min %s)\n", bal, policy.MinBalance())
	return nil
}

func weiToEther(wei *big.Int) string {
	f := new(big.Float).Quo(new(big.Float).SetInt(wei), big.NewFloat(params.Ether))
	return f.Text('f', 6)
}
