package aggregator

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"trader-core/pkg/config"
	"trader-core/pkg/errno"
	"trader-core/pkg/logger"
)

// HTTPSource 聚合器 REST 客户端 (Velora 风格接口)。
// 买卖都以 WETH 为对手币：买入 WETH->token，卖出 token->WETH。
type HTTPSource struct {
	baseURL  string
	apiKey   string
	wethAddr string
	chainID  int64
	client   *http.Client
}

func NewHTTPSource(cfg *config.AggregatorConfig, chainID int64, wethAddr string) *HTTPSource {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPSource{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:   cfg.APIKey,
		wethAddr: wethAddr,
		chainID:  chainID,
		client:   &http.Client{Timeout: timeout},
	}
}

type priceResponse struct {
	PriceRoute struct {
		SrcToken    string `json:"srcToken"`
		DestToken   string `json:"destToken"`
		SrcAmount   string `json:"srcAmount"`
		DestAmount  string `json:"destAmount"`
		PriceImpact string `json:"priceImpact"`
	} `json:"priceRoute"`
	Error string `json:"error"`
}

type buildResponse struct {
	To    string `json:"to"`
	Data  string `json:"data"`
	Value string `json:"value"`
	Gas   uint64 `json:"gas"`
	Error string `json:"error"`
}

func (s *HTTPSource) doJSON(ctx context.Context, method, path string, query url.Values, body interface{}, out interface{}) error {
	u := s.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = strings.NewReader(string(raw))
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.apiKey != "" {
		req.Header.Set("X-API-Key", s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("聚合器请求失败: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode == http.StatusNotFound {
		return errno.ErrNoRoute
	}
	if resp.StatusCode != http.StatusOK {
		logger.Warn("聚合器返回异常状态",
			zap.Int("status", resp.StatusCode), zap.String("path", path))
		return fmt.Errorf("聚合器返回 %d: %s", resp.StatusCode, string(raw))
	}
	return json.Unmarshal(raw, out)
}

func (s *HTTPSource) pair(req *QuoteRequest) (src, dest string) {
	if req.Direction == DirectionBuy {
		return s.wethAddr, req.TokenAddress
	}
	return req.TokenAddress, s.wethAddr
}

func (s *HTTPSource) Quote(ctx context.Context, req *QuoteRequest) (*Quote, error) {
	src, dest := s.pair(req)
	query := url.Values{}
	query.Set("srcToken", src)
	query.Set("destToken", dest)
	query.Set("amount", req.AmountIn.String())
	query.Set("side", "SELL") // 投入侧固定数量
	query.Set("network", fmt.Sprintf("%d", s.chainID))
	if req.UserAddress != "" {
		query.Set("userAddress", req.UserAddress)
	}

	var pr priceResponse
	if err := s.doJSON(ctx, http.MethodGet, "/prices", query, nil, &pr); err != nil {
		return nil, err
	}
	if pr.Error != "" {
		if strings.Contains(strings.ToLower(pr.Error), "no route") {
			return nil, errno.ErrNoRoute
		}
		return nil, fmt.Errorf("聚合器报价失败: %s", pr.Error)
	}

	amountOut, ok := new(big.Int).SetString(pr.PriceRoute.DestAmount, 10)
	if !ok {
		return nil, fmt.Errorf("聚合器返回的 destAmount 非法: %q", pr.PriceRoute.DestAmount)
	}
	impact, err := decimal.NewFromString(pr.PriceRoute.PriceImpact)
	if err != nil {
		impact = decimal.Zero
	}

	route, _ := json.Marshal(pr.PriceRoute)
	return &Quote{
		TokenAddress:   req.TokenAddress,
		Direction:      req.Direction,
		AmountIn:       new(big.Int).Set(req.AmountIn),
		AmountOut:      amountOut,
		PriceImpactPct: impact,
		Route:          route,
		FetchedAt:      time.Now(),
	}, nil
}

func (s *HTTPSource) BuildSwap(ctx context.Context, q *Quote, userAddr string, minOut *big.Int) (*SwapTx, error) {
	body := map[string]interface{}{
		"priceRoute":  json.RawMessage(q.Route),
		"userAddress": userAddr,
		"srcAmount":   q.AmountIn.String(),
		"destAmount":  minOut.String(),
	}

	var br buildResponse
	path := fmt.Sprintf("/transactions/%d", s.chainID)
	if err := s.doJSON(ctx, http.MethodPost, path, nil, body, &br); err != nil {
		return nil, err
	}
	if br.Error != "" {
		return nil, fmt.Errorf("聚合器构造交易失败: %s", br.Error)
	}

	data, err := hex.DecodeString(strings.TrimPrefix(br.Data, "0x"))
	if err != nil {
		return nil, fmt.Errorf("聚合器返回的 calldata 非法: %w", err)
	}
	value := big.NewInt(0)
	if br.Value != "" {
		if _, ok := value.SetString(br.Value, 10); !ok {
			return nil, fmt.Errorf("聚合器返回的 value 非法: %q", br.Value)
		}
	}
	return &SwapTx{To: br.To, Data: data, Value: value, GasEstimate: br.Gas}, nil
}

// Price 用 1 个代币基础单位报价反推现价，返回 token/ETH 价格
func (s *HTTPSource) Price(ctx context.Context, tokenAddress string) (decimal.Decimal, error) {
	// 用固定 1e18 代币问价，避免小额报价的精度抖动
	probe := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	q, err := s.Quote(ctx, &QuoteRequest{
		TokenAddress: tokenAddress,
		Direction:    DirectionSell,
		AmountIn:     probe,
	})
	if err != nil {
		return decimal.Zero, err
	}
	out := decimal.NewFromBigInt(q.AmountOut, -18)
	return out, nil
}
