package hdwallet

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/tyler-smith/go-bip39"
)

var (
	ErrInvalidSeed     = errors.New("无效的种子")
	ErrInvalidMnemonic = errors.New("无效的助记词")
)

// EthereumBasePath BIP-44 以太坊账户路径 (index 追加在末尾)
const EthereumBasePath = "m/44'/60'/0'/0"

// Wallet 封装 BIP-32 分层确定性钱包，密钥派生走 btcd 的 hdkeychain。
type Wallet struct {
	masterKey *hdkeychain.ExtendedKey
}

// NewFromSeed 使用 BIP-39 种子生成主密钥
func NewFromSeed(seed []byte) (*Wallet, error) {
	if len(seed) < 16 || len(seed) > 64 {
		return nil, ErrInvalidSeed
	}

	masterKey, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, fmt.Errorf("生成主密钥失败: %w", err)
	}

	return &Wallet{masterKey: masterKey}, nil
}

// NewFromMnemonic 校验助记词并生成钱包
func NewFromMnemonic(mnemonic, passphrase string) (*Wallet, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, ErrInvalidMnemonic
	}
	seed := bip39.NewSeed(mnemonic, passphrase)
	return NewFromSeed(seed)
}

// GenerateMnemonic 生成一个新的随机助记词 (BIP-39)。
// bitSize: 熵的位数，128 (12个单词) 或 256 (24个单词)。
func GenerateMnemonic(bitSize int) (string, error) {
	entropy, err := bip39.NewEntropy(bitSize)
	if err != nil {
		return "", fmt.Errorf("生成熵失败: %w", err)
	}
	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return "", fmt.Errorf("生成助记词失败: %w", err)
	}
	return mnemonic, nil
}

// DerivePath 解析路径并派生密钥
// 支持格式: m/44'/60'/0'/0/0 或 m/44h/60h/0h/0/0
func (w *Wallet) DerivePath(path string) (*hdkeychain.ExtendedKey, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return w.masterKey, nil
	}

	if strings.HasPrefix(path, "m/") {
		path = path[2:]
	}

	currentKey := w.masterKey
	for _, segment := range strings.Split(path, "/") {
		isHardened := false
		if strings.HasSuffix(segment, "'") || strings.HasSuffix(segment, "h") {
			isHardened = true
			segment = segment[:len(segment)-1]
		}

		val, err := strconv.ParseUint(segment, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("无效的路径段 '%s': %w", segment, err)
		}
		index := uint32(val)
		if isHardened {
			index += hdkeychain.HardenedKeyStart
		}

		currentKey, err = currentKey.Derive(index)
		if err != nil {
			return nil, fmt.Errorf("派生子密钥失败: %w", err)
		}
	}

	return currentKey, nil
}

// EthereumKeyBytes 派生 m/44'/60'/0'/0/<index> 并返回 32 字节私钥。
// 调用方负责将字节转换为所需的 ECDSA 表示，并在用完后清零。
func (w *Wallet) EthereumKeyBytes(index uint32) ([]byte, error) {
	key, err := w.DerivePath(fmt.Sprintf("%s/%d", EthereumBasePath, index))
	if err != nil {
		return nil, err
	}
	privKey, err := key.ECPrivKey()
	if err != nil {
		return nil, fmt.Errorf("获取 EC 私钥失败: %w", err)
	}
	return privKey.Serialize(), nil
}
