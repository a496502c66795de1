// Package api exposes the voucher service over HTTP.
package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Vara-Lab/Vara-Gasless-Server/internal/auth"
	"github.com/Vara-Lab/Vara-Gasless-Server/internal/sponsor"
	"github.com/Vara-Lab/Vara-Gasless-Server/internal/worker"
)

// VoucherService is satisfied by *sponsor.Service.
type VoucherService interface {
	Create(ctx context.Context, user common.Address) (sponsor.Result, error)
	Update(ctx context.Context, user common.Address, id common.Hash) (sponsor.Result, error)
	Data(ctx context.Context, user common.Address, id common.Hash) (sponsor.Data, error)
}

// FailedBatches is satisfied by *journal.Journal.
type FailedBatches interface {
	Recent(ctx context.Context, n int) ([]worker.FailedBatch, error)
}

const (
	defaultFailedLimit = 20
	maxFailedLimit     = 200
)

// Options control optional parts of the HTTP surface.
type Options struct {
	// RequireSignature puts auth.Middleware in front of the write routes.
	RequireSignature bool
	// Redis stores auth nonces; required when RequireSignature is set.
	Redis *redis.Client
	// Failed serves /failed-batches when set.
	Failed FailedBatches
}

type Handler struct {
	svc  VoucherService
	opts Options
	log  *zap.Logger
}

func NewHandler(svc VoucherService, opts Options, log *zap.Logger) *Handler {
	if err := registerValidators(); err != nil {
		log.Error("address validation unavailable", zap.Error(err))
	}
	return &Handler{svc: svc, opts: opts, log: log}
}

type createVoucherRequest struct {
	UserAddress string `json:"userAddress" binding:"required,ledgeraddr"`
}

type updateVoucherRequest struct {
	UserAddress string `json:"userAddress" binding:"required,ledgeraddr"`
	VoucherID   string `json:"voucherId" binding:"required,ledgeraddr"`
}

type voucherDataQuery struct {
	UserAddress string `form:"userAddress" binding:"required,ledgeraddr"`
	VoucherID   string `form:"voucherId" binding:"required,ledgeraddr"`
}

var fieldMessages = map[string]string{
	"UserAddress": "Invalid user address",
	"VoucherID":   "Invalid voucher id",
}

// Register mounts the voucher routes on rg (usually /voucher).
func (h *Handler) Register(rg *gin.RouterGroup) {
	rg.POST("/create-voucher", h.signed("create-voucher"), h.handleCreate)
	rg.POST("/update-voucher", h.signed("update-voucher"), h.handleUpdate)
	rg.GET("/voucher-data", h.handleData)
	if h.opts.Failed != nil {
		rg.GET("/failed-batches", h.handleFailedBatches)
	}
}

// signed returns the signature middleware for action, or a no-op.
func (h *Handler) signed(action string) gin.HandlerFunc {
	if !h.opts.RequireSignature {
		return func(c *gin.Context) { c.Next() }
	}
	return auth.Middleware(h.opts.Redis, action, h.log)
}

// user parses the user address and, when signatures are required, checks it
// against the signing wallet. It writes the error response itself.
func (h *Handler) user(c *gin.Context, raw string) (common.Address, bool) {
	if !common.IsHexAddress(raw) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": fieldMessages["UserAddress"]})
		return common.Address{}, false
	}
	user := common.HexToAddress(raw)
	if h.opts.RequireSignature {
		wallet, ok := auth.Wallet(c)
		if !ok || wallet != user {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "wallet does not match userAddress"})
			return common.Address{}, false
		}
	}
	return user, true
}

// ── Create ───────────────────────────────────────────────────────────────────

func (h *Handler) handleCreate(c *gin.Context) {
	var req createVoucherRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": bindMessage(err, fieldMessages)})
		return
	}
	user, ok := h.user(c, req.UserAddress)
	if !ok {
		return
	}

	res, err := h.svc.Create(c.Request.Context(), user)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

// ── Update ───────────────────────────────────────────────────────────────────

func (h *Handler) handleUpdate(c *gin.Context) {
	var req updateVoucherRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": bindMessage(err, fieldMessages)})
		return
	}
	user, ok := h.user(c, req.UserAddress)
	if !ok {
		return
	}

	res, err := h.svc.Update(c.Request.Context(), user, common.HexToHash(req.VoucherID))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// ── Data ─────────────────────────────────────────────────────────────────────

func (h *Handler) handleData(c *gin.Context) {
	var q voucherDataQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": bindMessage(err, fieldMessages)})
		return
	}
	if !common.IsHexAddress(q.UserAddress) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": fieldMessages["UserAddress"]})
		return
	}

	d, err := h.svc.Data(c.Request.Context(), common.HexToAddress(q.UserAddress), common.HexToHash(q.VoucherID))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Voucher data", "voucherData": d})
}

// ── Failed batches ───────────────────────────────────────────────────────────

func (h *Handler) handleFailedBatches(c *gin.Context) {
	limit := defaultFailedLimit
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = min(n, maxFailedLimit)
	}

	batches, err := h.opts.Failed.Recent(c.Request.Context(), limit)
	if err != nil {
		h.log.Error("read failed batches", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	if batches == nil {
		batches = []worker.FailedBatch{}
	}
	c.JSON(http.StatusOK, gin.H{"batches": batches})
}
