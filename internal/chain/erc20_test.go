package chain

import (
	"bytes"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

var (
	testWETH  = common.HexToAddress("0x4200000000000000000000000000000000000006")
	testToken = common.HexToAddress("0x1111111111111111111111111111111111111111")
	testTo    = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

func TestPackApprove(t *testing.T) {
	data, err := PackApprove(testTo.Hex(), MaxApproval)
	if err != nil {
		t.Fatalf("PackApprove failed: %v", err)
	}
	// approve(address,uint256) 的方法 ID
	if !bytes.Equal(data[:4], []byte{0x09, 0x5e, 0xa7, 0xb3}) {
		t.Errorf("unexpected method id: %x", data[:4])
	}
	if len(data) != 4+32+32 {
		t.Errorf("unexpected calldata length: %d", len(data))
	}
}

func TestPackTransfer(t *testing.T) {
	data, err := PackTransfer(testTo.Hex(), big.NewInt(1000))
	if err != nil {
		t.Fatalf("PackTransfer failed: %v", err)
	}
	if !bytes.Equal(data[:4], []byte{0xa9, 0x05, 0x9c, 0xbb}) {
		t.Errorf("unexpected method id: %x", data[:4])
	}
}

func TestDecodeRouterInputBuy(t *testing.T) {
	input, err := routerABI.Pack("swapExactETHForTokens",
		big.NewInt(0),
		[]common.Address{testWETH, testToken},
		testTo,
		big.NewInt(9999999999),
	)
	if err != nil {
		t.Fatalf("pack failed: %v", err)
	}

	direction, token, amountIn, ok := decodeRouterInput(input)
	if !ok {
		t.Fatal("expected decode to succeed")
	}
	if direction != "buy" {
		t.Errorf("direction = %s, want buy", direction)
	}
	if token != testToken.Hex() {
		t.Errorf("token = %s, want %s", token, testToken.Hex())
	}
	// 买入时投入量在 tx.Value 上，calldata 里没有
	if amountIn != nil {
		t.Errorf("expected nil amountIn for buy, got %v", amountIn)
	}
}

func TestDecodeRouterInputSell(t *testing.T) {
	want := big.NewInt(123456789)
	input, err := routerABI.Pack("swapExactTokensForETH",
		want,
		big.NewInt(0),
		[]common.Address{testToken, testWETH},
		testTo,
		big.NewInt(9999999999),
	)
	if err != nil {
		t.Fatalf("pack failed: %v", err)
	}

	direction, token, amountIn, ok := decodeRouterInput(input)
	if !ok {
		t.Fatal("expected decode to succeed")
	}
	if direction != "sell" {
		t.Errorf("direction = %s, want sell", direction)
	}
	if token != testToken.Hex() {
		t.Errorf("token = %s, want %s", token, testToken.Hex())
	}
	if amountIn.Cmp(want) != 0 {
		t.Errorf("amountIn = %v, want %v", amountIn, want)
	}
}

func TestDecodeRouterInputGarbage(t *testing.T) {
	if _, _, _, ok := decodeRouterInput([]byte{0x01, 0x02}); ok {
		t.Error("short input should not decode")
	}
	if _, _, _, ok := decodeRouterInput([]byte{0xde, 0xad, 0xbe, 0xef, 0x00}); ok {
		t.Error("unknown method should not decode")
	}
}
