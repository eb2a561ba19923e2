package vault

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// Signer 签名能力。私钥只活在这里，从不向外暴露。
type Signer struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

func newSigner(keyBytes []byte) (*Signer, error) {
	key, err := crypto.ToECDSA(keyBytes)
	if err != nil {
		return nil, fmt.Errorf("私钥格式非法: %w", err)
	}
	return &Signer{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
	}, nil
}

// Address 返回 EIP-55 校验和地址
func (s *Signer) Address() string {
	return s.address.Hex()
}

// SignTx 按 EIP-155/London 规则签名
func (s *Signer) SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), s.key)
	if err != nil {
		return nil, fmt.Errorf("交易签名失败: %w", err)
	}
	return signed, nil
}
