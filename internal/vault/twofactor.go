package vault

import (
	"encoding/json"
	"fmt"

	"github.com/pquerna/otp/totp"

	"trader-core/pkg/crypto_util"
	"trader-core/pkg/safe_random"
)

const (
	totpIssuer      = "trader-core"
	backupCodeCount = 8
	backupCodeBytes = 5 // 10 个十六进制字符
)

// generateTOTPSecret 生成 TOTP 密钥，返回 (secret, otpauth URI)
func generateTOTPSecret(userID int64) (string, string, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      totpIssuer,
		AccountName: fmt.Sprintf("user-%d", userID),
	})
	if err != nil {
		return "", "", fmt.Errorf("生成 TOTP 密钥失败: %w", err)
	}
	return key.Secret(), key.URL(), nil
}

func verifyTOTP(secret, token string) bool {
	return totp.Validate(token, secret)
}

// newBackupCodes 生成一次性备份码。
// 返回明文 (只在本次响应里出现一次) 和落库用的 SHA256 哈希 JSON。
func newBackupCodes() (plain []string, hashed []byte, err error) {
	hashes := make([]string, 0, backupCodeCount)
	for i := 0; i < backupCodeCount; i++ {
		code, err := safe_random.GenerateRandomHexString(backupCodeBytes)
		if err != nil {
			return nil, nil, err
		}
		plain = append(plain, code)
		hashes = append(hashes, crypto_util.CalculateSHA256([]byte(code)))
	}
	hashed, err = json.Marshal(hashes)
	if err != nil {
		return nil, nil, err
	}
	return plain, hashed, nil
}

// consumeBackupCode 核对并划掉一个备份码。
// 命中返回更新后的哈希数组，未命中返回 ok=false。
func consumeBackupCode(stored []byte, code string) (updated []byte, ok bool) {
	if len(stored) == 0 {
		return stored, false
	}
	var hashes []string
	if err := json.Unmarshal(stored, &hashes); err != nil {
		return stored, false
	}
	target := crypto_util.CalculateSHA256([]byte(code))
	for i, h := range hashes {
		if h == target {
			hashes = append(hashes[:i], hashes[i+1:]...)
			updated, err := json.Marshal(hashes)
			if err != nil {
				return stored, false
			}
			return updated, true
		}
	}
	return stored, false
}
