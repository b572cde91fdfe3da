package symbols

import (
	"regexp"
	"strconv"
	"strings"
)

// InstrumentType 交易品种类型
type InstrumentType string

const (
	// Equity 股票
	Equity InstrumentType = "EQUITY"
	// Futures 期货
	Futures InstrumentType = "FUTURES"
	// CallOption 看涨期权
	CallOption InstrumentType = "CALL_OPTION"
	// PutOption 看跌期权
	PutOption InstrumentType = "PUT_OPTION"
	// Index 指数
	Index InstrumentType = "INDEX"
)

var monthAbbrevs = []string{
	"JAN", "FEB", "MAR", "APR", "MAY", "JUN",
	"JUL", "AUG", "SEP", "OCT", "NOV", "DEC",
}

var indexNames = []string{
	"NIFTY", "BANKNIFTY", "FINNIFTY", "MIDCPNIFTY", "SENSEX",
}

// ClassifyInstrument 根据符号判断品种类型
//
// 期权符号以 CE/PE 结尾；期货符号包含 FUT 或月份缩写；
// NIFTY 系列为指数；其余默认为股票。
func ClassifyInstrument(symbol string) InstrumentType {
	upper := strings.ToUpper(symbol)

	// CE/PE 之前必须有行权价数字，避免把 RELIANCE 这类股票误判为期权
	if optionRe.MatchString(upper) {
		if strings.HasSuffix(upper, "CE") {
			return CallOption
		}
		return PutOption
	}

	if strings.Contains(upper, "FUT") || containsMonth(upper) {
		return Futures
	}

	for _, idx := range indexNames {
		if strings.Contains(upper, idx) {
			return Index
		}
	}

	return Equity
}

func containsMonth(upper string) bool {
	for _, m := range monthAbbrevs {
		if strings.Contains(upper, m) {
			return true
		}
	}
	return false
}

// IsOptions 是否为期权
func (t InstrumentType) IsOptions() bool {
	return t == CallOption || t == PutOption
}

// IsDerivative 是否为衍生品（期货或期权）
func (t InstrumentType) IsDerivative() bool {
	return t == Futures || t.IsOptions()
}

// RequiresLotSize 是否需要按手数下单
func (t InstrumentType) RequiresLotSize() bool {
	return t.IsDerivative()
}

// OptionInfo 期权符号解析结果
type OptionInfo struct {
	Underlying string  // 标的
	Strike     float64 // 行权价
	OptionType string  // CALL 或 PUT
	Expiry     string  // 到期日片段（可能为空）
	Original   string  // 原始符号
}

var (
	optionRe = regexp.MustCompile(`\d+(CE|PE)$`)
	strikeRe = regexp.MustCompile(`(\d+)$`)
	expiryRe = regexp.MustCompile(`(\d{1,2}[A-Z]{3}\d{2,4}|\d{4}[A-Z]{3}\d{1,2}|\d{4}[A-Z]{3}|\d{1,2}[A-Z]{3})$`)
)

// ParseOptionSymbol 解析期权符号
//
// 支持 NIFTY25DEC24500CE、BANKNIFTY2024DEC2550000PE 等格式。
// 非期权符号返回 nil。
func ParseOptionSymbol(symbol string) *OptionInfo {
	upper := strings.ToUpper(symbol)
	var optionType string
	switch {
	case strings.HasSuffix(upper, "CE"):
		optionType = "CALL"
	case strings.HasSuffix(upper, "PE"):
		optionType = "PUT"
	default:
		return nil
	}

	base := symbol[:len(symbol)-2]

	// 行权价为末尾数字
	strikeMatch := strikeRe.FindStringIndex(base)
	if strikeMatch == nil {
		return nil
	}
	strike, err := strconv.ParseFloat(base[strikeMatch[0]:strikeMatch[1]], 64)
	if err != nil {
		return nil
	}
	withoutStrike := base[:strikeMatch[0]]

	// 到期日片段
	info := &OptionInfo{
		Strike:     strike,
		OptionType: optionType,
		Original:   symbol,
	}
	if expiryMatch := expiryRe.FindStringIndex(withoutStrike); expiryMatch != nil {
		info.Expiry = withoutStrike[expiryMatch[0]:expiryMatch[1]]
		info.Underlying = withoutStrike[:expiryMatch[0]]
	} else {
		info.Underlying = withoutStrike
	}

	return info
}
