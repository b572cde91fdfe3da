package paperbroker

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"stockmesh/logger"
)

// 历史数据为1分钟K线的 CSV 文件，列: datetime,open,high,low,close,volume
// 文件名形如 RELIANCE_minute.csv 或 BANK_1m.csv，符号取自文件名。

var csvTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05-07:00",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// LoadHistoryDir 加载目录下所有 CSV 历史数据，返回 交易对 -> 1分钟K线
func LoadHistoryDir(dir string) (map[string][]Candle, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("读取历史数据目录失败: %w", err)
	}

	history := make(map[string][]Candle)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".csv") {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		candles, err := loadHistoryFile(path)
		if err != nil {
			logger.Error("加载历史数据文件失败 %s: %v", entry.Name(), err)
			continue
		}
		if len(candles) == 0 {
			continue
		}

		pair := pairFromFilename(entry.Name())
		history[pair] = candles
		logger.Info("已加载 %s 的 %d 根K线 (%s ~ %s)", pair, len(candles),
			candles[0].Timestamp.Format("2006-01-02 15:04"),
			candles[len(candles)-1].Timestamp.Format("2006-01-02 15:04"))
	}

	return history, nil
}

// pairFromFilename 从文件名提取交易对，如 BANK_minute.csv -> BANK/INR
func pairFromFilename(name string) string {
	base := strings.TrimSuffix(name, ".csv")
	base = strings.TrimSuffix(base, "_minute")
	base = strings.TrimSuffix(base, "_1m")
	return strings.ToUpper(base) + "/INR"
}

// loadHistoryFile 加载单个 CSV 文件并按时间排序
func loadHistoryFile(path string) ([]Candle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开文件失败: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("解析 CSV 失败: %w", err)
	}
	if len(records) < 2 {
		return nil, nil
	}

	// 定位列
	cols := map[string]int{}
	for i, name := range records[0] {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"datetime", "open", "high", "low", "close", "volume"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("缺少必需列: %s", required)
		}
	}

	candles := make([]Candle, 0, len(records)-1)
	for _, row := range records[1:] {
		ts, err := parseCSVTime(row[cols["datetime"]])
		if err != nil {
			continue
		}

		candle := Candle{Timestamp: ts}
		ok := true
		for name, dst := range map[string]*float64{
			"open":   &candle.Open,
			"high":   &candle.High,
			"low":    &candle.Low,
			"close":  &candle.Close,
			"volume": &candle.Volume,
		} {
			v, err := strconv.ParseFloat(strings.TrimSpace(row[cols[name]]), 64)
			if err != nil {
				ok = false
				break
			}
			*dst = v
		}
		if ok {
			candles = append(candles, candle)
		}
	}

	sort.Slice(candles, func(i, j int) bool {
		return candles[i].Timestamp.Before(candles[j].Timestamp)
	})
	return candles, nil
}

func parseCSVTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range csvTimeLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("无法解析时间: %s", s)
}

// Resample 将1分钟K线重采样为目标周期
//
// 桶按 Unix 纪元对齐。聚合规则: open 取首值, high 取最大, low 取最小,
// close 取末值, volume 求和。没有数据的桶直接跳过。
func Resample(candles []Candle, bucket time.Duration) []Candle {
	if bucket <= time.Minute || len(candles) == 0 {
		return candles
	}

	var result []Candle
	var current *Candle
	var currentBucket time.Time

	bucketMs := bucket.Milliseconds()
	for _, c := range candles {
		// 桶按 Unix 纪元对齐
		ms := c.Timestamp.UnixMilli()
		bucketStart := time.UnixMilli(ms - ms%bucketMs).UTC()
		if current == nil || !bucketStart.Equal(currentBucket) {
			if current != nil {
				result = append(result, *current)
			}
			currentBucket = bucketStart
			current = &Candle{
				Timestamp: bucketStart,
				Open:      c.Open,
				High:      c.High,
				Low:       c.Low,
				Close:     c.Close,
				Volume:    c.Volume,
			}
			continue
		}

		if c.High > current.High {
			current.High = c.High
		}
		if c.Low < current.Low {
			current.Low = c.Low
		}
		current.Close = c.Close
		current.Volume += c.Volume
	}
	if current != nil {
		result = append(result, *current)
	}

	logger.Debug("重采样: %d 根1分钟K线 -> %d 根 %v K线", len(candles), len(result), bucket)
	return result
}

// SliceCandles 按 since/limit 截取K线
//
// since 为毫秒时间戳。since > 0 时返回 since 起的前 limit 根；
// 否则返回最近的 limit 根。
func SliceCandles(candles []Candle, since int64, limit int) []Candle {
	if limit <= 0 {
		limit = 100
	}

	if since > 0 {
		sinceTime := time.UnixMilli(since)
		start := sort.Search(len(candles), func(i int) bool {
			return !candles[i].Timestamp.Before(sinceTime)
		})
		end := start + limit
		if end > len(candles) {
			end = len(candles)
		}
		return candles[start:end]
	}

	if len(candles) > limit {
		return candles[len(candles)-limit:]
	}
	return candles
}
