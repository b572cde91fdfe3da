package exchange

import (
	"stockmesh/symbols"
)

// BuildMarkets 从交易对白名单构建市场目录
//
// 品种类型由符号启发式分类，衍生品手数来自手数管理器。
func BuildMarkets(pairs []string, lots *symbols.LotSizeManager) map[string]Market {
	markets := make(map[string]Market, len(pairs))
	for _, pair := range pairs {
		base, quote := symbols.SplitPair(pair)
		instrument := symbols.ClassifyInstrument(base)

		lotSize := 1
		if instrument.RequiresLotSize() && lots != nil {
			lotSize = lots.GetLotSize(base)
		}

		markets[pair] = Market{
			Pair:    pair,
			Base:    base,
			Quote:   quote,
			Type:    string(instrument),
			LotSize: lotSize,
			Active:  true,
		}
	}
	return markets
}

// minStakeFor 最小下单金额：股票一股，衍生品一手
func minStakeFor(markets map[string]Market, pair string, price float64) float64 {
	if m, ok := markets[pair]; ok && m.LotSize > 1 {
		return float64(m.LotSize) * price
	}
	return price
}
