package chain

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// 最小 ERC-20 ABI，只保留引擎用得到的方法
const erc20ABIJSON = `[
	{"constant":true,"inputs":[],"name":"name","outputs":[{"name":"","type":"string"}],"type":"function"},
	{"constant":true,"inputs":[],"name":"symbol","outputs":[{"name":"","type":"string"}],"type":"function"},
	{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"type":"function"},
	{"constant":true,"inputs":[],"name":"totalSupply","outputs":[{"name":"","type":"uint256"}],"type":"function"},
	{"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"type":"function"},
	{"constant":true,"inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"name":"allowance","outputs":[{"name":"","type":"uint256"}],"type":"function"},
	{"constant":false,"inputs":[{"name":"spender","type":"address"},{"name":"value","type":"uint256"}],"name":"approve","outputs":[{"name":"","type":"bool"}],"type":"function"},
	{"constant":false,"inputs":[{"name":"to","type":"address"},{"name":"value","type":"uint256"}],"name":"transfer","outputs":[{"name":"","type":"bool"}],"type":"function"}
]`

// 路由最小 ABI，够解析买卖方向即可
const routerABIJSON = `[
	{"inputs":[{"name":"amountOutMin","type":"uint256"},{"name":"path","type":"address[]"},{"name":"to","type":"address"},{"name":"deadline","type":"uint256"}],"name":"swapExactETHForTokens","outputs":[{"name":"amounts","type":"uint256[]"}],"stateMutability":"payable","type":"function"},
	{"inputs":[{"name":"amountIn","type":"uint256"},{"name":"amountOutMin","type":"uint256"},{"name":"path","type":"address[]"},{"name":"to","type":"address"},{"name":"deadline","type":"uint256"}],"name":"swapExactTokensForETH","outputs":[{"name":"amounts","type":"uint256[]"}],"stateMutability":"nonpayable","type":"function"}
]`

var (
	erc20ABI  abi.ABI
	routerABI abi.ABI

	// MaxApproval 卖出前授权用的最大额度 (2^256-1)
	MaxApproval = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
)

func init() {
	var err error
	erc20ABI, err = abi.JSON(strings.NewReader(erc20ABIJSON))
	if err != nil {
		panic(fmt.Sprintf("erc20 abi: %v", err))
	}
	routerABI, err = abi.JSON(strings.NewReader(routerABIJSON))
	if err != nil {
		panic(fmt.Sprintf("router abi: %v", err))
	}
}

// PackApprove 构造 approve(spender, amount) 调用数据
func PackApprove(spender string, amount *big.Int) ([]byte, error) {
	return erc20ABI.Pack("approve", common.HexToAddress(spender), amount)
}

// PackTransfer 构造 transfer(to, amount) 调用数据 (手续费划转用)
func PackTransfer(to string, amount *big.Int) ([]byte, error) {
	return erc20ABI.Pack("transfer", common.HexToAddress(to), amount)
}

func packERC20Call(method string, args ...interface{}) ([]byte, error) {
	return erc20ABI.Pack(method, args...)
}

// decodeRouterInput 解析路由 calldata，返回 (方向, 目标代币, 代币投入量)。
// 非 swap 调用返回 ok=false。
func decodeRouterInput(input []byte) (direction, token string, amountIn *big.Int, ok bool) {
	if len(input) < 4 {
		return "", "", nil, false
	}
	method, err := routerABI.MethodById(input[:4])
	if err != nil {
		return "", "", nil, false
	}
	args, err := method.Inputs.Unpack(input[4:])
	if err != nil {
		return "", "", nil, false
	}
	switch method.Name {
	case "swapExactETHForTokens":
		path, _ := args[1].([]common.Address)
		if len(path) < 2 {
			return "", "", nil, false
		}
		// ETH 投入量在 tx.Value 里，由调用方补
		return "buy", path[len(path)-1].Hex(), nil, true
	case "swapExactTokensForETH":
		amt, _ := args[0].(*big.Int)
		path, _ := args[2].([]common.Address)
		if len(path) < 2 {
			return "", "", nil, false
		}
		return "sell", path[0].Hex(), amt, true
	}
	return "", "", nil, false
}
