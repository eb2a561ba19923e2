package engine

import (
	"math/big"
	"strings"

	"trader-core/pkg/errno"
)

var bpsDenominator = big.NewInt(10000)

// ResolveAmount 把金额表达式解析成基础单位整数。
// 支持两种形式：
//   - 绝对值: "2500000000000000000" (基础单位十进制整数)
//   - 余额百分比: "50%"、"12.5%" (内部换算成万分比整数运算)
//
// 百分比结果向下截断，保证解析值永远不超过实时余额。
func ResolveAmount(expr string, balance *big.Int) (*big.Int, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, errno.ErrBadAmount
	}

	if strings.HasSuffix(expr, "%") {
		bps, err := percentToBps(strings.TrimSuffix(expr, "%"))
		if err != nil {
			return nil, err
		}
		amount := new(big.Int).Mul(balance, bps)
		amount.Quo(amount, bpsDenominator) // 截断，绝不向上取整
		if amount.Sign() <= 0 {
			return nil, errno.ErrBadAmount
		}
		return amount, nil
	}

	amount, ok := new(big.Int).SetString(expr, 10)
	if !ok || amount.Sign() <= 0 {
		return nil, errno.ErrBadAmount
	}
	return amount, nil
}

// percentToBps "12.5" -> 1250。最多两位小数，超出视为非法而不是偷偷舍入。
func percentToBps(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	intPart := s
	fracPart := ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		intPart = s[:i]
		fracPart = s[i+1:]
	}
	if intPart == "" && fracPart == "" {
		return nil, errno.ErrBadAmount
	}
	if len(fracPart) > 2 {
		return nil, errno.ErrBadAmount
	}
	for len(fracPart) < 2 {
		fracPart += "0"
	}
	if intPart == "" {
		intPart = "0"
	}

	bps, ok := new(big.Int).SetString(intPart+fracPart, 10)
	if !ok {
		return nil, errno.ErrBadAmount
	}
	if bps.Sign() <= 0 || bps.Cmp(bpsDenominator) > 0 {
		return nil, errno.ErrBadAmount
	}
	return bps, nil
}

// feeFor 协议费 = amountIn × feeRateBps / 10000，截断
func feeFor(amountIn *big.Int, feeRateBps int64) *big.Int {
	fee := new(big.Int).Mul(amountIn, big.NewInt(feeRateBps))
	return fee.Quo(fee, bpsDenominator)
}

// minOutFor 滑点下界 = expectedOut × (10000 - slippageBps) / 10000
func minOutFor(expectedOut *big.Int, slippageBps int64) *big.Int {
	factor := big.NewInt(10000 - slippageBps)
	if factor.Sign() < 0 {
		factor.SetInt64(0)
	}
	min := new(big.Int).Mul(expectedOut, factor)
	return min.Quo(min, bpsDenominator)
}
