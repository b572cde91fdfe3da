package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"stockmesh/exchange/paperbroker"
	"stockmesh/logger"
)

// FillJournal 模拟盘成交流水存储（SQLite）
//
// 每笔成交追加一行，重启时按流水聚合恢复净持仓。
type FillJournal struct {
	db *sql.DB
}

// NewFillJournal 创建成交流水存储
func NewFillJournal(path string) (*FillJournal, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("创建数据目录失败: %w", err)
		}
	}

	// 使用 WAL 模式提高并发性能
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}

	// 设置连接池
	db.SetMaxOpenConns(1) // SQLite 并发限制
	db.SetMaxIdleConns(1)

	if err := createFillsTable(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("创建表失败: %w", err)
	}

	logger.Info("成交流水存储已打开: %s", path)
	return &FillJournal{db: db}, nil
}

// createFillsTable 创建成交流水表
func createFillsTable(db *sql.DB) error {
	fillsSQL := `
	CREATE TABLE IF NOT EXISTS fills (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		order_id TEXT,
		pair TEXT,
		side TEXT,
		quantity DECIMAL(20,8),
		price DECIMAL(20,8),
		commission DECIMAL(20,8),
		created_at TIMESTAMP
	);`
	if _, err := db.Exec(fillsSQL); err != nil {
		return err
	}

	indexSQL := `CREATE INDEX IF NOT EXISTS idx_fills_pair ON fills(pair);`
	_, err := db.Exec(indexSQL)
	return err
}

// RecordFill 写入一笔成交
func (j *FillJournal) RecordFill(t *paperbroker.Trade) error {
	_, err := j.db.Exec(`
		INSERT INTO fills (order_id, pair, side, quantity, price, commission, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.OrderID, t.Pair, string(t.Side), t.Quantity, t.Price, t.Commission, t.Timestamp)
	if err != nil {
		return fmt.Errorf("写入成交流水失败: %w", err)
	}
	return nil
}

// OpenPositions 按流水聚合净持仓
//
// 净数量 = 累计买入 - 累计卖出, 成本按买入均价折算, 净数量为零的交易对不返回。
func (j *FillJournal) OpenPositions() ([]*paperbroker.Position, error) {
	rows, err := j.db.Query(`
		SELECT pair,
		       SUM(CASE WHEN side = 'BUY' THEN quantity ELSE 0 END) AS buy_qty,
		       SUM(CASE WHEN side = 'BUY' THEN quantity * price ELSE 0 END) AS buy_value,
		       SUM(CASE WHEN side = 'SELL' THEN quantity ELSE 0 END) AS sell_qty
		FROM fills
		GROUP BY pair`)
	if err != nil {
		return nil, fmt.Errorf("查询成交流水失败: %w", err)
	}
	defer rows.Close()

	var positions []*paperbroker.Position
	for rows.Next() {
		var pair string
		var buyQty, buyValue, sellQty float64
		if err := rows.Scan(&pair, &buyQty, &buyValue, &sellQty); err != nil {
			return nil, fmt.Errorf("读取成交流水失败: %w", err)
		}

		net := buyQty - sellQty
		if net <= 0 || buyQty <= 0 {
			continue
		}
		avgPrice := buyValue / buyQty
		positions = append(positions, &paperbroker.Position{
			Pair:       pair,
			Quantity:   net,
			AvgPrice:   avgPrice,
			Cost:       net * avgPrice,
			UpdateTime: time.Now(),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历成交流水失败: %w", err)
	}
	return positions, nil
}

// FillCount 流水总笔数
func (j *FillJournal) FillCount() (int64, error) {
	var count int64
	err := j.db.QueryRow(`SELECT COUNT(*) FROM fills`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("统计成交流水失败: %w", err)
	}
	return count, nil
}

// Clear 清空流水
func (j *FillJournal) Clear() error {
	if _, err := j.db.Exec(`DELETE FROM fills`); err != nil {
		return fmt.Errorf("清空成交流水失败: %w", err)
	}
	return nil
}

// Close 关闭数据库
func (j *FillJournal) Close() error {
	return j.db.Close()
}
