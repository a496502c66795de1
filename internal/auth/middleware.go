// Package auth verifies that voucher requests are signed by the wallet they
// are made for.
package auth

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	HeaderWallet    = "X-Wallet-Address"
	HeaderMessage   = "X-Signed-Message"
	HeaderSignature = "X-Wallet-Signature"

	walletKey      = "wallet_address"
	nonceKeyPrefix = "auth:nonce:"
)

// SignedMessage is the JSON document carried base64-encoded in X-Signed-Message.
type SignedMessage struct {
	Action    string `json:"action"`
	ExpiresAt int64  `json:"expires_at"`
	Nonce     string `json:"nonce"`
}

const maxFutureWindow = 5 * time.Minute

// Middleware accepts a request only if it carries a fresh, unused message for
// action signed by the wallet in X-Wallet-Address. The wallet is stored on the
// context for Wallet.
func Middleware(rdb *redis.Client, action string, log *zap.Logger) gin.HandlerFunc {
	deny := func(c *gin.Context, msg string) {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg})
	}
	return func(c *gin.Context) {
		walletHex := c.GetHeader(HeaderWallet)
		msgB64 := c.GetHeader(HeaderMessage)
		sigHex := c.GetHeader(HeaderSignature)
		if walletHex == "" || msgB64 == "" || sigHex == "" {
			deny(c, "missing auth headers")
			return
		}
		if !common.IsHexAddress(walletHex) {
			deny(c, "invalid wallet address")
			return
		}
		wallet := common.HexToAddress(walletHex)

		raw, err := base64.StdEncoding.DecodeString(msgB64)
		if err != nil {
			deny(c, "invalid X-Signed-Message encoding")
			return
		}
		var msg SignedMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			deny(c, "invalid signed message JSON")
			return
		}
		if msg.Action != action {
			deny(c, "signed for a different action")
			return
		}

		now := time.Now().Unix()
		if msg.ExpiresAt <= now {
			deny(c, "request expired")
			return
		}
		if msg.ExpiresAt > now+int64(maxFutureWindow.Seconds()) {
			deny(c, "expires_at too far in future")
			return
		}

		if err := VerifyHex(raw, sigHex, wallet); err != nil {
			log.Debug("signature rejected", zap.String("wallet", wallet.Hex()), zap.Error(err))
			deny(c, "invalid signature")
			return
		}

		// The nonce lives as long as the message could still be replayed.
		ttl := time.Duration(msg.ExpiresAt-now) * time.Second
		fresh, err := rdb.SetNX(c.Request.Context(), nonceKeyPrefix+msg.Nonce, wallet.Hex(), ttl).Result()
		if err != nil {
			log.Error("nonce store", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		if !fresh {
			deny(c, "nonce already used")
			return
		}

		c.Set(walletKey, wallet)
		c.Next()
	}
}

// Wallet returns the wallet verified by Middleware, if any.
func Wallet(c *gin.Context) (common.Address, bool) {
	v, ok := c.Get(walletKey)
	if !ok {
		return common.Address{}, false
	}
	addr, ok := v.(common.Address)
	return addr, ok
}
