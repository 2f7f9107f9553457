// Package sales provides data source connectors that pull per-SKU daily
// sales history from external systems and normalize it for training.
//
// Each source implements the Source interface and can be plugged into the
// service. Available sources:
//   - SQLSource: daily aggregates from a MySQL sales table
//   - HTTPSource: generic connector for any REST API with JSON responses
//
// Sources are intentionally lightweight. They pull raw (date, quantity)
// rows and leave gap-filling, deduplication, and all modeling to the
// training pipeline.
package sales

import (
	"context"
	"fmt"
	"time"

	"github.com/demandcast/demandcast/pkg/timeseries"
)

// SKUInfo describes one SKU eligible for training.
type SKUInfo struct {
	SKU       string    `json:"sku"`
	Name      string    `json:"name,omitempty"`
	Records   int       `json:"sales_records"`
	FirstSale time.Time `json:"first_sale"`
	LastSale  time.Time `json:"last_sale"`
	TotalSold float64   `json:"total_sold"`
}

// Source is the contract for sales history backends.
//
// History calls are synchronous and must respect context cancellation and
// deadlines.
type Source interface {
	// History returns the raw daily sales rows for one SKU, one row per
	// recorded day. Quantities may be nil when the backend has gaps.
	History(ctx context.Context, sku string) ([]timeseries.Record, error)

	// ListTrainable returns the SKUs with enough recorded history to be
	// worth training, most-recorded first.
	ListTrainable(ctx context.Context) ([]SKUInfo, error)

	// Name returns a short identifier for the source kind.
	Name() string
}

// New creates a source based on kind and a generic configuration map. This
// is the central extension point for adding new source kinds.
//
// Supported kinds:
//   - "sql":  MySQL sales table (requires "dsn")
//   - "http": REST endpoint (requires "url", "datePath", "quantityPath")
func New(kind string, config map[string]string) (Source, error) {
	switch kind {
	case "sql":
		dsn := config["dsn"]
		if dsn == "" {
			return nil, fmt.Errorf("sql source requires 'dsn' config")
		}
		return NewSQLSource(dsn)
	case "http":
		return newHTTPSource(config)
	default:
		return nil, fmt.Errorf("unknown source kind: %s (must be sql or http)", kind)
	}
}
