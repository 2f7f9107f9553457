package sales

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/demandcast/demandcast/pkg/timeseries"
)

// minListingRecords is the floor below which a SKU is not worth listing as
// trainable. It is deliberately lower than the training gate so operators
// can see SKUs that are accumulating history but not yet trainable.
const minListingRecords = 10

const historyQuery = `
SELECT date, SUM(qty)
FROM sales
WHERE sku = ?
GROUP BY date
ORDER BY date`

const trainableQuery = `
SELECT
    s.sku,
    COALESCE(i.name, ''),
    COUNT(*),
    MIN(s.date),
    MAX(s.date),
    COALESCE(SUM(s.qty), 0)
FROM sales s
LEFT JOIN inventory_items i ON s.sku = i.sku
GROUP BY s.sku, i.name
HAVING COUNT(*) >= ?
ORDER BY COUNT(*) DESC`

// SQLSource reads daily sales aggregates from a MySQL database with a
// sales(sku, date, qty) table and an optional inventory_items(sku, name)
// table for display names.
type SQLSource struct {
	db *sql.DB
}

// NewSQLSource opens a MySQL connection pool for the given DSN and verifies
// connectivity. The DSN must include parseTime=true so DATE columns scan
// into time.Time.
func NewSQLSource(dsn string) (*SQLSource, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sales database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to sales database: %w", err)
	}

	return &SQLSource{db: db}, nil
}

func (s *SQLSource) Name() string { return "sql" }

// History returns one row per day with recorded sales for the SKU,
// ascending by date. Days with a NULL aggregate come back with a nil
// quantity and are dropped later during preparation.
func (s *SQLSource) History(ctx context.Context, sku string) ([]timeseries.Record, error) {
	rows, err := s.db.QueryContext(ctx, historyQuery, sku)
	if err != nil {
		return nil, fmt.Errorf("failed to query sales history for %s: %w", sku, err)
	}
	defer rows.Close()

	var records []timeseries.Record
	for rows.Next() {
		var (
			date time.Time
			qty  sql.NullFloat64
		)
		if err := rows.Scan(&date, &qty); err != nil {
			return nil, fmt.Errorf("failed to scan sales row for %s: %w", sku, err)
		}

		record := timeseries.Record{Date: date}
		if qty.Valid {
			v := qty.Float64
			record.Quantity = &v
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read sales history for %s: %w", sku, err)
	}

	return records, nil
}

// ListTrainable returns the SKUs with at least minListingRecords recorded
// days, most-recorded first.
func (s *SQLSource) ListTrainable(ctx context.Context) ([]SKUInfo, error) {
	rows, err := s.db.QueryContext(ctx, trainableQuery, minListingRecords)
	if err != nil {
		return nil, fmt.Errorf("failed to query trainable skus: %w", err)
	}
	defer rows.Close()

	var infos []SKUInfo
	for rows.Next() {
		var info SKUInfo
		if err := rows.Scan(&info.SKU, &info.Name, &info.Records,
			&info.FirstSale, &info.LastSale, &info.TotalSold); err != nil {
			return nil, fmt.Errorf("failed to scan sku row: %w", err)
		}
		infos = append(infos, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read trainable skus: %w", err)
	}

	return infos, nil
}

// Close releases the connection pool.
func (s *SQLSource) Close() error {
	return s.db.Close()
}
