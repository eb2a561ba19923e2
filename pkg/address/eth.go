package address

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"
)

var ErrInvalidAddress = errors.New("无效的以太坊地址")

// Validate 检查字符串是否为合法的 0x 开头以太坊地址
func Validate(s string) error {
	if !common.IsHexAddress(s) {
		return ErrInvalidAddress
	}
	return nil
}

// Normalize 将地址规范化为 EIP-55 混合大小写形式。
// 数据库与内存索引统一用此形式，避免大小写差异导致同一地址出现两份记录。
func Normalize(s string) (string, error) {
	if !common.IsHexAddress(s) {
		return "", ErrInvalidAddress
	}
	return common.HexToAddress(s).Hex(), nil
}
