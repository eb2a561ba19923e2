package hdwallet

import (
	"encoding/hex"
	"testing"
)

func TestNewFromMnemonic(t *testing.T) {
	mnemonic, err := GenerateMnemonic(128)
	if err != nil {
		t.Fatalf("生成助记词失败: %v", err)
	}

	wallet, err := NewFromMnemonic(mnemonic, "")
	if err != nil {
		t.Fatalf("生成钱包失败: %v", err)
	}

	keyBytes, err := wallet.EthereumKeyBytes(0)
	if err != nil {
		t.Fatalf("派生 ETH 私钥失败: %v", err)
	}
	if len(keyBytes) != 32 {
		t.Errorf("私钥长度 = %d, 期望 32", len(keyBytes))
	}
}

func TestNewFromMnemonicInvalid(t *testing.T) {
	_, err := NewFromMnemonic("not a valid mnemonic phrase at all", "")
	if err != ErrInvalidMnemonic {
		t.Errorf("期望 ErrInvalidMnemonic, 得到 %v", err)
	}
}

func TestDerivePath(t *testing.T) {
	// 固定种子保证派生结果可重复
	seedHex := "fffcf9f6da3247d8a846f4b6113e6173fffcf9f6da3247d8a846f4b6113e6173"
	seed, _ := hex.DecodeString(seedHex)

	wallet, err := NewFromSeed(seed)
	if err != nil {
		t.Fatalf("生成主密钥失败: %v", err)
	}

	// Hardened 与非 Hardened 路径都要能走通
	for _, path := range []string{"m/0", "m/0'", "m/44'/60'/0'/0/0", "m/44h/60h/0h/0/0"} {
		child, err := wallet.DerivePath(path)
		if err != nil {
			t.Errorf("派生路径 %s 失败: %v", path, err)
			continue
		}
		if !child.IsPrivate() {
			t.Errorf("路径 %s 应派生出私钥", path)
		}
	}

	// ' 和 h 两种 Hardened 写法应得到同一把密钥
	a, _ := wallet.DerivePath("m/44'/60'/0'/0/1")
	b, _ := wallet.DerivePath("m/44h/60h/0h/0/1")
	if a.String() != b.String() {
		t.Error("' 与 h 写法派生结果不一致")
	}

	// 同一 index 的派生必须是确定性的
	k1, _ := wallet.EthereumKeyBytes(5)
	k2, _ := wallet.EthereumKeyBytes(5)
	if hex.EncodeToString(k1) != hex.EncodeToString(k2) {
		t.Error("同一路径两次派生得到不同私钥")
	}
}

func TestDerivePathInvalidSegment(t *testing.T) {
	seed := make([]byte, 32)
	wallet, _ := NewFromSeed(seed)

	if _, err := wallet.DerivePath("m/abc"); err == nil {
		t.Error("无效路径段应返回错误")
	}
}

func TestNewFromSeedBadLength(t *testing.T) {
	if _, err := NewFromSeed(make([]byte, 8)); err != ErrInvalidSeed {
		t.Errorf("期望 ErrInvalidSeed, 得到 %v", err)
	}
}
