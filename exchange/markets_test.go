package exchange

import (
	"context"
	"math"
	"testing"

	"stockmesh/symbols"
)

func TestBuildMarkets(t *testing.T) {
	lots := symbols.NewLotSizeManager("")
	markets := BuildMarkets([]string{"RELIANCE/INR", "NIFTY25JAN24000CE/INR", "NIFTY50/INR"}, lots)

	if len(markets) != 3 {
		t.Fatalf("市场数量错误: %d", len(markets))
	}

	eq := markets["RELIANCE/INR"]
	if eq.Base != "RELIANCE" || eq.Quote != "INR" || eq.Type != "EQUITY" || eq.LotSize != 1 {
		t.Errorf("股票市场条目错误: %+v", eq)
	}

	opt := markets["NIFTY25JAN24000CE/INR"]
	if opt.Type != "CALL_OPTION" {
		t.Errorf("期权分类错误: %+v", opt)
	}
	if opt.LotSize != 25 {
		t.Errorf("NIFTY 期权手数应为 25: %d", opt.LotSize)
	}

	idx := markets["NIFTY50/INR"]
	if idx.Type != "INDEX" {
		t.Errorf("指数分类错误: %+v", idx)
	}
}

func TestCapabilitiesSupports(t *testing.T) {
	caps := Capabilities{FetchTicker: true, CreateOrder: true}

	if !caps.Supports("fetchTicker") || !caps.Supports("createOrder") {
		t.Error("已声明的能力探测失败")
	}
	if caps.Supports("fetchOHLCV") || caps.Supports("watchQuotes") {
		t.Error("未声明的能力不应通过探测")
	}
	if caps.Supports("fetchFundingRate") {
		t.Error("未知端点不应通过探测")
	}
}

func TestPaperMarketsAndStakes(t *testing.T) {
	cfg := newPaperConfig(t)
	cfg.Trading.PairWhitelist = []string{"RELIANCE/INR", "BANKNIFTY25JAN48000PE/INR"}

	ex, err := NewExchange(cfg)
	if err != nil {
		t.Fatalf("创建模拟盘失败: %v", err)
	}
	defer ex.Close()

	markets := ex.GetMarkets()
	if len(markets) != 2 {
		t.Fatalf("市场目录数量错误: %d", len(markets))
	}

	// 手续费率 = 配置百分比 / 100（默认 0.1%）
	if fee := ex.GetFee("RELIANCE/INR"); fee != 0.001 {
		t.Errorf("手续费率错误: %v", fee)
	}

	// 股票最小金额一股，期权一手
	if min := ex.GetMinStake("RELIANCE/INR", 2500); min != 2500 {
		t.Errorf("股票最小下单金额错误: %v", min)
	}
	if min := ex.GetMinStake("BANKNIFTY25JAN48000PE/INR", 100); min != 1500 {
		t.Errorf("BANKNIFTY 期权最小下单金额应为 15 手数×100: %v", min)
	}

	// 最大金额为可用资金
	max, err := ex.GetMaxStake(context.Background(), "RELIANCE/INR")
	if err != nil {
		t.Fatalf("查询最大下单金额失败: %v", err)
	}
	if max != 100000 {
		t.Errorf("最大下单金额应为初始资金: %v", max)
	}
}

func TestPaperGetOrders(t *testing.T) {
	ex, err := NewExchange(newPaperConfig(t))
	if err != nil {
		t.Fatalf("创建模拟盘失败: %v", err)
	}
	defer ex.Close()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := ex.PlaceOrder(ctx, &OrderRequest{
			Pair: "TCS/INR", Side: SideBuy, Type: OrderTypeMarket, Quantity: 1,
		}); err != nil {
			t.Fatalf("下单失败: %v", err)
		}
	}
	if _, err := ex.PlaceOrder(ctx, &OrderRequest{
		Pair: "INFY/INR", Side: SideBuy, Type: OrderTypeMarket, Quantity: 1,
	}); err != nil {
		t.Fatalf("下单失败: %v", err)
	}

	orders, err := ex.GetOrders(ctx, "TCS/INR", 0)
	if err != nil {
		t.Fatalf("查询订单历史失败: %v", err)
	}
	if len(orders) != 3 {
		t.Errorf("TCS 订单数量错误: %d", len(orders))
	}
	for _, o := range orders {
		if o.Pair != "TCS/INR" {
			t.Errorf("订单历史混入其他交易对: %+v", o)
		}
	}
}

func TestOpenAlgoMaxStakeUnbounded(t *testing.T) {
	w := &openalgoWrapper{}
	max, err := w.GetMaxStake(context.Background(), "RELIANCE/INR")
	if err != nil {
		t.Fatalf("查询最大下单金额失败: %v", err)
	}
	if !math.IsInf(max, 1) {
		t.Errorf("OpenAlgo 最大下单金额应无上限: %v", max)
	}
}
