// Package vault 管理用户签名私钥的加密存储与解锁会话。
//
// 私钥明文只在两个地方短暂存在：封存/解封过程的局部变量，
// 和解锁会话持有的 Signer。落库的永远是密文加校验哈希。
package vault

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"trader-core/internal/model"
	"trader-core/pkg/config"
	"trader-core/pkg/crypto_util"
	"trader-core/pkg/errno"
	"trader-core/pkg/hdwallet"
	"trader-core/pkg/logger"
	"trader-core/pkg/monitor"
)

// BadCredentialsError 口令或 PIN 错误，带剩余可尝试次数
type BadCredentialsError struct {
	Remaining int
}

func (e *BadCredentialsError) Error() string {
	return fmt.Sprintf("口令错误，剩余 %d 次尝试机会", e.Remaining)
}

// Session 解锁结果，返回给调用方的会话视图
type Session struct {
	Address    string    `json:"address"`
	UnlockedAt time.Time `json:"unlocked_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// CreateResult 建仓结果。助记词和备份码只在这里出现一次，之后无法找回。
type CreateResult struct {
	Address      string   `json:"address"`
	Mnemonic     string   `json:"mnemonic"`
	TwoFactorURI string   `json:"two_factor_uri"`
	BackupCodes  []string `json:"backup_codes"`
}

type Vault struct {
	store    Store
	sessions *sessionManager
	attempts *attemptTracker
	timeout  time.Duration
	now      func() time.Time

	// 备份码消费的用户粒度锁
	locksMu sync.Mutex
	locks   map[int64]*sync.Mutex
}

func New(store Store, cfg *config.VaultConfig) *Vault {
	return newWithClock(store, cfg, time.Now)
}

// newWithClock 测试注入时钟用
func newWithClock(store Store, cfg *config.VaultConfig, now func() time.Time) *Vault {
	return &Vault{
		store:    store,
		sessions: newSessionManager(cfg.LockTimeout, now),
		attempts: newAttemptTracker(cfg.MaxAttempts, cfg.AttemptDecay, now),
		timeout:  cfg.LockTimeout,
		now:      now,
		locks:    make(map[int64]*sync.Mutex),
	}
}

// sealRecord 把私钥明文封存成一条完整的落库记录
func (v *Vault) sealRecord(userID int64, keyBytes []byte, password, pin string) (*model.VaultRecord, []string, error) {
	priv, err := crypto.ToECDSA(keyBytes)
	if err != nil {
		return nil, nil, errno.ErrInvalidSecret
	}
	address := crypto.PubkeyToAddress(priv.PublicKey).Hex()

	sealed, err := crypto_util.SealKey(keyBytes, password)
	if err != nil {
		return nil, nil, fmt.Errorf("私钥封存失败: %w", err)
	}
	sealedJSON, err := sealed.Marshal()
	if err != nil {
		return nil, nil, err
	}
	// PIN 封存副本，快速解锁路径解这一份
	sealedPin, err := crypto_util.SealKey(keyBytes, pin)
	if err != nil {
		return nil, nil, fmt.Errorf("私钥封存失败: %w", err)
	}
	sealedPinJSON, err := sealedPin.Marshal()
	if err != nil {
		return nil, nil, err
	}

	pinHash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		return nil, nil, err
	}
	secret, _, err := generateTOTPSecret(userID)
	if err != nil {
		return nil, nil, err
	}
	codes, hashedCodes, err := newBackupCodes()
	if err != nil {
		return nil, nil, err
	}

	return &model.VaultRecord{
		UserID:          userID,
		Address:         address,
		SealedKey:       sealedJSON,
		SealedKeyPin:    sealedPinJSON,
		KeyVerifyHash:   crypto_util.CalculateBlake3(keyBytes),
		PinHash:         string(pinHash),
		TwoFactorOn:     false,
		TwoFactorSecret: secret,
		BackupCodes:     hashedCodes,
	}, codes, nil
}

// Create 生成新钱包。userID 已有记录时返回 ErrWalletExists。
func (v *Vault) Create(ctx context.Context, userID int64, password, pin string) (*CreateResult, error) {
	if _, err := v.store.Get(ctx, userID); err == nil {
		return nil, errno.ErrWalletExists
	}

	mnemonic, err := hdwallet.GenerateMnemonic(128)
	if err != nil {
		return nil, err
	}
	wallet, err := hdwallet.NewFromMnemonic(mnemonic, "")
	if err != nil {
		return nil, err
	}
	keyBytes, err := wallet.EthereumKeyBytes(0)
	if err != nil {
		return nil, err
	}

	rec, codes, err := v.sealRecord(userID, keyBytes, password, pin)
	if err != nil {
		return nil, err
	}
	if err := v.store.Create(ctx, rec); err != nil {
		return nil, err
	}

	// URI 重新生成会换 secret，这里从存好的 secret 拼
	uri := fmt.Sprintf("otpauth://totp/%s:user-%d?secret=%s&issuer=%s",
		totpIssuer, userID, rec.TwoFactorSecret, totpIssuer)

	monitor.Business.WalletCreatedTotal.Inc()
	logger.Info("钱包已创建", zap.Int64("user_id", userID), zap.String("address", rec.Address))
	return &CreateResult{
		Address:      rec.Address,
		Mnemonic:     mnemonic,
		TwoFactorURI: uri,
		BackupCodes:  codes,
	}, nil
}

// Import 导入已有私钥或助记词
func (v *Vault) Import(ctx context.Context, userID int64, secretMaterial, password, pin string) (*CreateResult, error) {
	if _, err := v.store.Get(ctx, userID); err == nil {
		return nil, errno.ErrWalletExists
	}

	keyBytes, err := parseSecretMaterial(secretMaterial)
	if err != nil {
		return nil, errno.ErrInvalidSecret
	}

	rec, codes, err := v.sealRecord(userID, keyBytes, password, pin)
	if err != nil {
		return nil, err
	}
	if err := v.store.Create(ctx, rec); err != nil {
		return nil, err
	}

	monitor.Business.WalletCreatedTotal.Inc()
	logger.Info("钱包已导入", zap.Int64("user_id", userID), zap.String("address", rec.Address))
	return &CreateResult{Address: rec.Address, BackupCodes: codes}, nil
}

// parseSecretMaterial 接受 64 位十六进制私钥 (可带 0x 前缀) 或 BIP-39 助记词
func parseSecretMaterial(material string) ([]byte, error) {
	material = strings.TrimSpace(material)
	if material == "" {
		return nil, errno.ErrInvalidSecret
	}

	trimmed := strings.TrimPrefix(material, "0x")
	if len(trimmed) == 64 && !strings.Contains(trimmed, " ") {
		priv, err := crypto.HexToECDSA(trimmed)
		if err != nil {
			return nil, errno.ErrInvalidSecret
		}
		return crypto.FromECDSA(priv), nil
	}

	wallet, err := hdwallet.NewFromMnemonic(material, "")
	if err != nil {
		return nil, errno.ErrInvalidSecret
	}
	return wallet.EthereumKeyBytes(0)
}

// openSealed 解封并核对校验哈希。
// 解封成功但哈希不符说明记录损坏，只影响这个用户，不影响进程。
func (v *Vault) openSealed(sealedJSON []byte, credential, verifyHash string) ([]byte, error) {
	sealed, err := crypto_util.UnmarshalSealedKey(sealedJSON)
	if err != nil {
		return nil, fmt.Errorf("保险库记录损坏: %w", err)
	}
	keyBytes, err := sealed.Open(credential)
	if err != nil {
		return nil, err // ErrDecrypt
	}
	if crypto_util.CalculateBlake3(keyBytes) != verifyHash {
		return nil, fmt.Errorf("保险库记录损坏: 校验哈希不符")
	}
	return keyBytes, nil
}

// checkSecondFactor 校验 TOTP 或备份码。备份码命中后立即作废。
func (v *Vault) checkSecondFactor(ctx context.Context, rec *model.VaultRecord, token string) error {
	if token == "" {
		return errno.ErrNeedsSecondFactor
	}
	if verifyTOTP(rec.TwoFactorSecret, token) {
		return nil
	}
	return v.useBackupCode(ctx, rec.UserID, token)
}

// useBackupCode 备份码单次有效：在用户粒度锁内重读记录再消费，
// 并发出示同一枚码只有一个能成功
func (v *Vault) useBackupCode(ctx context.Context, userID int64, token string) error {
	l := v.backupLock(userID)
	l.Lock()
	defer l.Unlock()

	rec, err := v.store.Get(ctx, userID)
	if err != nil {
		return err
	}
	updated, ok := consumeBackupCode(rec.BackupCodes, token)
	if !ok {
		return errno.ErrBadTOTP
	}
	rec.BackupCodes = updated
	return v.store.Update(ctx, rec)
}

func (v *Vault) backupLock(userID int64) *sync.Mutex {
	v.locksMu.Lock()
	defer v.locksMu.Unlock()
	l, ok := v.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		v.locks[userID] = l
	}
	return l
}

// unlockCommon 口令解锁与 PIN 快速解锁共用的主路径。
// open 负责用对应凭据解封私钥，其余的计数、二次验证、建会话完全一致。
func (v *Vault) unlockCommon(ctx context.Context, userID int64, totpToken string,
	open func(rec *model.VaultRecord) ([]byte, error)) (*Session, error) {

	rec, err := v.store.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	// 验证前先占位计数：加一与上限检查在同一临界区，
	// 并发打满请求也只有 max 次能走到真正的凭据验证
	if !v.attempts.begin(userID) {
		monitor.Business.LockoutTotal.Inc()
		return nil, errno.ErrAttemptsExceeded
	}

	keyBytes, err := open(rec)
	if err != nil {
		if err == crypto_util.ErrDecrypt {
			remaining := v.attempts.confirm(userID)
			monitor.Business.UnlockFailedTotal.Inc()
			logger.Warn("解锁失败", zap.Int64("user_id", userID), zap.Int("remaining", remaining))
			return nil, &BadCredentialsError{Remaining: remaining}
		}
		v.attempts.rollback(userID)
		return nil, err
	}

	if rec.TwoFactorOn {
		if err := v.checkSecondFactor(ctx, rec, totpToken); err != nil {
			if err == errno.ErrBadTOTP {
				v.attempts.confirm(userID)
				monitor.Business.UnlockFailedTotal.Inc()
			} else {
				// 缺 token 或内部错误不算猜错凭据
				v.attempts.rollback(userID)
			}
			return nil, err
		}
	}

	signer, err := newSigner(keyBytes)
	if err != nil {
		v.attempts.rollback(userID)
		return nil, err
	}

	v.attempts.reset(userID)
	unlockedAt := v.sessions.put(userID, signer)
	return &Session{
		Address:    signer.Address(),
		UnlockedAt: unlockedAt,
		ExpiresAt:  unlockedAt.Add(v.timeout),
	}, nil
}

// Unlock 口令解锁。启用了 2FA 且未带 token 时返回 ErrNeedsSecondFactor，不建会话。
func (v *Vault) Unlock(ctx context.Context, userID int64, password, totpToken string) (*Session, error) {
	return v.unlockCommon(ctx, userID, totpToken, func(rec *model.VaultRecord) ([]byte, error) {
		return v.openSealed(rec.SealedKey, password, rec.KeyVerifyHash)
	})
}

// QuickUnlock PIN 快速解锁，低摩擦路径，失败计数和 2FA 要求与 Unlock 完全一致
func (v *Vault) QuickUnlock(ctx context.Context, userID int64, pin, totpToken string) (*Session, error) {
	return v.unlockCommon(ctx, userID, totpToken, func(rec *model.VaultRecord) ([]byte, error) {
		// 先比 bcrypt 哈希，避免 PIN 明显不对时白跑一次 scrypt
		if bcrypt.CompareHashAndPassword([]byte(rec.PinHash), []byte(pin)) != nil {
			return nil, crypto_util.ErrDecrypt
		}
		return v.openSealed(rec.SealedKeyPin, pin, rec.KeyVerifyHash)
	})
}

// EnableTwoFactor 校验一次 TOTP 后启用二次验证，换发一批新备份码。
// 建仓时发的那批明文无法再次取回，这里重新生成。
func (v *Vault) EnableTwoFactor(ctx context.Context, userID int64, totpToken string) ([]string, error) {
	rec, err := v.store.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !verifyTOTP(rec.TwoFactorSecret, totpToken) {
		return nil, errno.ErrBadTOTP
	}

	codes, hashedCodes, err := newBackupCodes()
	if err != nil {
		return nil, err
	}
	rec.TwoFactorOn = true
	rec.BackupCodes = hashedCodes
	if err := v.store.Update(ctx, rec); err != nil {
		return nil, err
	}

	logger.Info("二次验证已启用", zap.Int64("user_id", userID))
	return codes, nil
}

// IsUnlocked 会话存活判定，为真时顺带刷新滑动过期窗口
func (v *Vault) IsUnlocked(userID int64) bool {
	return v.sessions.touch(userID)
}

// GetSigner 取签名能力。没有存活会话时返回 ErrWalletLocked，绝不返回裸私钥。
func (v *Vault) GetSigner(userID int64) (*Signer, error) {
	signer, ok := v.sessions.signer(userID)
	if !ok {
		return nil, errno.ErrWalletLocked
	}
	return signer, nil
}

// Lock 销毁会话，对已锁定的用户是幂等空操作。
// 已签名广播的在途交易不受影响，只是拦住后续新交易。
func (v *Vault) Lock(userID int64) {
	v.sessions.drop(userID)
}

// ResetAttempts 管理员重置失败计数
func (v *Vault) ResetAttempts(userID int64) {
	v.attempts.reset(userID)
	logger.Info("失败计数已重置", zap.Int64("user_id", userID))
}

// Address 查公开地址，不需要解锁
func (v *Vault) Address(ctx context.Context, userID int64) (string, error) {
	rec, err := v.store.Get(ctx, userID)
	if err != nil {
		return "", err
	}
	return rec.Address, nil
}
