package engine

import (
	"context"
	"math/big"
	"time"

	"go.uber.org/zap"

	"trader-core/pkg/errno"
	"trader-core/pkg/logger"
	"trader-core/pkg/monitor"
	"trader-core/pkg/safe_random"
)

// splitAmounts 把总量拆成 n 份近似相等的腿，余数摊到前几条腿上。
// 各腿之和严格等于总量。
func splitAmounts(total *big.Int, n int) []*big.Int {
	q, r := new(big.Int).QuoRem(total, big.NewInt(int64(n)), new(big.Int))
	rem := r.Int64()

	legs := make([]*big.Int, n)
	for i := 0; i < n; i++ {
		leg := new(big.Int).Set(q)
		if int64(i) < rem {
			leg.Add(leg, big.NewInt(1))
		}
		legs[i] = leg
	}
	return legs
}

// executeSplit 反抢跑拆单路径：
// 腿与腿之间随机延迟 (打乱时序特征)，小费逐腿递增 (避免被稳定抢价)。
// 某条腿失败只记录，不回滚已确认的腿，也不阻止后续腿继续提交。
func (e *Engine) executeSplit(ctx context.Context, signer Signer, req *TradeRequest, total *big.Int) (*TradeResult, error) {
	legs := splitAmounts(total, e.cfg.SplitCount)
	maxDelay := time.Duration(e.cfg.SplitMaxDelayMs) * time.Millisecond

	result := &TradeResult{
		UserID:    req.UserID,
		Token:     req.TokenAddress,
		Direction: req.Direction,
		AmountIn:  total,
		FeeAmount: big.NewInt(0),
		Sandbox:   req.Sandbox,
	}

	failed := 0
	for i, legAmount := range legs {
		if legAmount.Sign() == 0 {
			continue
		}
		if i > 0 && maxDelay > 0 {
			delay, err := safe_random.RandomDuration(maxDelay)
			if err == nil {
				e.sleep(delay)
			}
		}

		start := e.now()
		tipBoost := int64(i) * e.cfg.TipEscalationBps
		outcome, err := e.executeLeg(ctx, signer, req, legAmount, tipBoost)
		monitor.Business.SplitLegDuration.WithLabelValues(req.Direction).
			Observe(e.now().Sub(start).Seconds())

		leg := LegResult{Index: i, AmountIn: legAmount}
		if err != nil {
			failed++
			leg.Err = err.Error()
			logger.Warn("拆单腿执行失败",
				zap.Int64("user_id", req.UserID), zap.Int("leg", i), zap.Error(err))
		} else {
			leg.TxHash = outcome.swapHash
			result.TxHashes = append(result.TxHashes, outcome.txHashes...)
			result.FeeAmount.Add(result.FeeAmount, outcome.fee)
		}
		result.Legs = append(result.Legs, leg)
	}

	mode := "live"
	if req.Sandbox {
		mode = "sandbox"
	}
	if failed == 0 {
		monitor.Business.TradeExecutedTotal.WithLabelValues(req.Direction, mode).Inc()
		return result, nil
	}
	monitor.Business.TradeFailedTotal.WithLabelValues(req.Direction, "split_leg").Inc()
	return result, errno.ErrPartialSplitFailure
}
