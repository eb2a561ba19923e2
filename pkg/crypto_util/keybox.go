package crypto_util

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"

	"golang.org/x/crypto/scrypt"
)

// SealedKey 是私钥的落库形态，结构上参考 Ethereum Keystore V3。
// 密文由口令派生的密钥加密，GCM 的认证标签附在密文尾部。
type SealedKey struct {
	Cipher     string    `json:"cipher"`     // "aes-256-gcm"
	CipherText string    `json:"ciphertext"` // Hex string (含 GCM tag)
	Nonce      string    `json:"nonce"`      // Hex string
	KDF        string    `json:"kdf"`        // "scrypt"
	KDFParams  KDFParams `json:"kdfparams"`
	Version    int       `json:"version"` // 3
}

type KDFParams struct {
	DKLen int    `json:"dklen"` // Derived Key Length (32)
	N     int    `json:"n"`     // Scrypt N
	R     int    `json:"r"`     // Scrypt r
	P     int    `json:"p"`     // Scrypt p
	Salt  string `json:"salt"`  // Hex string
}

const (
	scryptN     = 262144
	scryptR     = 8
	scryptP     = 1
	scryptDKLen = 32
)

var ErrDecrypt = errors.New("解密失败: 口令错误或数据损坏")

// SealKey 用口令加密私钥明文。
// 每次调用生成新的随机 Salt 和 Nonce。
func SealKey(plaintext []byte, password string) (*SealedKey, error) {
	salt := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, err
	}

	derivedKey, err := scrypt.Key([]byte(password), salt, scryptN, scryptR, scryptP, scryptDKLen)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(derivedKey)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	ciphertext := gcm.Seal(nil, nonce, plaintext, nil)

	return &SealedKey{
		Version:    3,
		Cipher:     "aes-256-gcm",
		CipherText: hex.EncodeToString(ciphertext),
		Nonce:      hex.EncodeToString(nonce),
		KDF:        "scrypt",
		KDFParams: KDFParams{
			DKLen: scryptDKLen,
			N:     scryptN,
			R:     scryptR,
			P:     scryptP,
			Salt:  hex.EncodeToString(salt),
		},
	}, nil
}

// Open 用口令解密。口令错误时 GCM 认证失败，返回 ErrDecrypt。
func (k *SealedKey) Open(password string) ([]byte, error) {
	salt, err := hex.DecodeString(k.KDFParams.Salt)
	if err != nil {
		return nil, ErrDecrypt
	}
	nonce, err := hex.DecodeString(k.Nonce)
	if err != nil {
		return nil, ErrDecrypt
	}
	ciphertext, err := hex.DecodeString(k.CipherText)
	if err != nil {
		return nil, ErrDecrypt
	}

	derivedKey, err := scrypt.Key([]byte(password), salt,
		k.KDFParams.N, k.KDFParams.R, k.KDFParams.P, k.KDFParams.DKLen)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(derivedKey)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrDecrypt
	}

	return plaintext, nil
}

// Marshal 序列化为 JSON，用于落库。
func (k *SealedKey) Marshal() ([]byte, error) {
	return json.Marshal(k)
}

// UnmarshalSealedKey 从 JSON 恢复。
func UnmarshalSealedKey(data []byte) (*SealedKey, error) {
	var k SealedKey
	if err := json.Unmarshal(data, &k); err != nil {
		return nil, err
	}
	return &k, nil
}
