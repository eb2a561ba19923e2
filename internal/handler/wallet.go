package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"trader-core/internal/handler/response"
	"trader-core/internal/vault"
	"trader-core/pkg/errno"
)

type WalletHandler struct {
	Vault *vault.Vault
}

func NewWalletHandler(v *vault.Vault) *WalletHandler {
	return &WalletHandler{Vault: v}
}

// credentialError 把带剩余次数的错误翻译成稳定的错误码，消息保留次数信息
func credentialError(c *gin.Context, err error) {
	if bad, ok := err.(*vault.BadCredentialsError); ok {
		response.Error(c, errno.Errno{Code: errno.ErrBadCredentials.Code, Message: bad.Error()})
		return
	}
	response.Error(c, err)
}

type createWalletRequest struct {
	UserID   int64  `json:"user_id" binding:"required"`
	Password string `json:"password" binding:"required,min=8"`
	Pin      string `json:"pin" binding:"required,min=4"`
}

// Create 创建新钱包，助记词和备份码只在响应里出现一次
func (h *WalletHandler) Create(c *gin.Context) {
	var req createWalletRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errno.ErrBind)
		return
	}
	res, err := h.Vault.Create(c.Request.Context(), req.UserID, req.Password, req.Pin)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

type importWalletRequest struct {
	UserID         int64  `json:"user_id" binding:"required"`
	SecretMaterial string `json:"secret_material" binding:"required"`
	Password       string `json:"password" binding:"required,min=8"`
	Pin            string `json:"pin" binding:"required,min=4"`
}

// Import 导入私钥或助记词
func (h *WalletHandler) Import(c *gin.Context) {
	var req importWalletRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errno.ErrBind)
		return
	}
	res, err := h.Vault.Import(c.Request.Context(), req.UserID, req.SecretMaterial, req.Password, req.Pin)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

type unlockRequest struct {
	UserID    int64  `json:"user_id" binding:"required"`
	Password  string `json:"password"`
	Pin       string `json:"pin"`
	TotpToken string `json:"totp_token"`
}

// Unlock 口令解锁
func (h *WalletHandler) Unlock(c *gin.Context) {
	var req unlockRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Password == "" {
		response.Error(c, errno.ErrBind)
		return
	}
	sess, err := h.Vault.Unlock(c.Request.Context(), req.UserID, req.Password, req.TotpToken)
	if err != nil {
		credentialError(c, err)
		return
	}
	response.Success(c, sess)
}

// QuickUnlock PIN 快速解锁
func (h *WalletHandler) QuickUnlock(c *gin.Context) {
	var req unlockRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Pin == "" {
		response.Error(c, errno.ErrBind)
		return
	}
	sess, err := h.Vault.QuickUnlock(c.Request.Context(), req.UserID, req.Pin, req.TotpToken)
	if err != nil {
		credentialError(c, err)
		return
	}
	response.Success(c, sess)
}

type twoFactorRequest struct {
	UserID    int64  `json:"user_id" binding:"required"`
	TotpToken string `json:"totp_token" binding:"required"`
}

// EnableTwoFactor 启用二次验证，响应携带一批新备份码
func (h *WalletHandler) EnableTwoFactor(c *gin.Context) {
	var req twoFactorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errno.ErrBind)
		return
	}
	codes, err := h.Vault.EnableTwoFactor(c.Request.Context(), req.UserID, req.TotpToken)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"backup_codes": codes})
}

type lockRequest struct {
	UserID int64 `json:"user_id" binding:"required"`
}

// Lock 显式上锁，幂等
func (h *WalletHandler) Lock(c *gin.Context) {
	var req lockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errno.ErrBind)
		return
	}
	h.Vault.Lock(req.UserID)
	response.Success(c, nil)
}

// Status 查询地址与解锁状态
func (h *WalletHandler) Status(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Query("user_id"), 10, 64)
	if err != nil || userID == 0 {
		response.Error(c, errno.ErrBind)
		return
	}
	addr, err := h.Vault.Address(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{
		"address":  addr,
		"unlocked": h.Vault.IsUnlocked(userID),
	})
}
