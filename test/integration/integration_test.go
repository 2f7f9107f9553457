//go:build integration

package integration

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	_ "github.com/go-sql-driver/mysql"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/demandcast/demandcast/pkg/forecast"
	"github.com/demandcast/demandcast/pkg/prediction"
	"github.com/demandcast/demandcast/pkg/sales"
	"github.com/demandcast/demandcast/pkg/storage"
	"github.com/demandcast/demandcast/pkg/training"
)

// TestSalesPipelineE2E runs the full pipeline against a real MySQL
// container: fetch history through the SQL source, train, persist the
// artifact, reload it, and predict.
func TestSalesPipelineE2E(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "mysql:8",
		ExposedPorts: []string{"3306/tcp"},
		Env: map[string]string{
			"MYSQL_ROOT_PASSWORD": "secret",
			"MYSQL_DATABASE":      "shop",
		},
		WaitingFor: wait.ForSQL("3306/tcp", "mysql", func(host string, port nat.Port) string {
			return fmt.Sprintf("root:secret@tcp(%s:%s)/shop?parseTime=true", host, port.Port())
		}).WithStartupTimeout(2 * time.Minute),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start MySQL container: %v", err)
	}
	defer container.Terminate(ctx)

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "3306")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	dsn := fmt.Sprintf("root:secret@tcp(%s:%s)/shop?parseTime=true", host, port.Port())
	seedDatabase(t, dsn)

	source, err := sales.NewSQLSource(dsn)
	if err != nil {
		t.Fatalf("Failed to create SQL source: %v", err)
	}
	defer source.Close()

	store := storage.NewMemoryStore()
	defer store.Stop()

	trainer := training.NewTrainer(nil)

	t.Run("ListTrainable", func(t *testing.T) {
		skus, err := source.ListTrainable(ctx)
		if err != nil {
			t.Fatalf("ListTrainable failed: %v", err)
		}
		if len(skus) != 1 {
			t.Fatalf("Expected 1 trainable SKU, got %d", len(skus))
		}
		if skus[0].SKU != "WIDGET-1" {
			t.Errorf("Expected WIDGET-1, got %s", skus[0].SKU)
		}
		if skus[0].Name != "Widget Classic" {
			t.Errorf("Expected joined product name, got %q", skus[0].Name)
		}
		if skus[0].Records != 90 {
			t.Errorf("Expected 90 sales records, got %d", skus[0].Records)
		}
	})

	t.Run("TrainAndPredict", func(t *testing.T) {
		records, err := source.History(ctx, "WIDGET-1")
		if err != nil {
			t.Fatalf("History failed: %v", err)
		}
		if len(records) != 90 {
			t.Fatalf("Expected 90 daily records, got %d", len(records))
		}

		model, metrics, err := trainer.Train(ctx, "WIDGET-1", records)
		if err != nil {
			t.Fatalf("Train failed: %v", err)
		}
		if metrics.TestSamples == 0 {
			t.Error("Expected a holdout evaluation")
		}

		blob, err := json.Marshal(model)
		if err != nil {
			t.Fatalf("Marshal model failed: %v", err)
		}
		artifact := storage.Artifact{
			SKU:       "WIDGET-1",
			Model:     blob,
			Metrics:   metrics,
			TrainedAt: time.Now().UTC(),
		}
		if err := store.Put(ctx, artifact); err != nil {
			t.Fatalf("Put failed: %v", err)
		}

		loaded, found, err := store.Get(ctx, "WIDGET-1")
		if err != nil || !found {
			t.Fatalf("Get: found=%v err=%v", found, err)
		}

		var restored forecast.Model
		if err := json.Unmarshal(loaded.Model, &restored); err != nil {
			t.Fatalf("Unmarshal model failed: %v", err)
		}

		result, err := prediction.Predict(&restored, 30, time.Time{})
		if err != nil {
			t.Fatalf("Predict failed: %v", err)
		}
		if len(result.Rows) != 30 {
			t.Fatalf("Expected 30 prediction rows, got %d", len(result.Rows))
		}
		for _, row := range result.Rows {
			if row.Value < 0 {
				t.Errorf("Negative demand prediction on %s: %v", row.Date, row.Value)
			}
		}
		if result.Summary.Total <= 0 {
			t.Errorf("Expected positive total demand, got %v", result.Summary.Total)
		}
	})

	t.Run("SparseSKURejected", func(t *testing.T) {
		records, err := source.History(ctx, "SPARSE-1")
		if err != nil {
			t.Fatalf("History failed: %v", err)
		}
		if _, _, err := trainer.Train(ctx, "SPARSE-1", records); err == nil {
			t.Error("Expected training to fail on sparse history")
		}
	})
}

// seedDatabase creates the schema and inserts 90 days of sales for
// WIDGET-1 and 5 days for SPARSE-1.
func seedDatabase(t *testing.T, dsn string) {
	t.Helper()

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	stmts := []string{
		`CREATE TABLE sales (
			id INT AUTO_INCREMENT PRIMARY KEY,
			sku VARCHAR(64) NOT NULL,
			date DATE NOT NULL,
			qty DOUBLE,
			INDEX idx_sku_date (sku, date)
		)`,
		`CREATE TABLE inventory_items (
			sku VARCHAR(64) PRIMARY KEY,
			name VARCHAR(255)
		)`,
		`INSERT INTO inventory_items (sku, name) VALUES ('WIDGET-1', 'Widget Classic'), ('SPARSE-1', 'Rare Gadget')`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("Failed to seed schema: %v", err)
		}
	}

	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 90; i++ {
		day := base.AddDate(0, 0, i)
		qty := 20 + 5*float64(i%7)
		if _, err := db.Exec(`INSERT INTO sales (sku, date, qty) VALUES (?, ?, ?)`, "WIDGET-1", day, qty); err != nil {
			t.Fatalf("Failed to seed sales: %v", err)
		}
	}
	for i := 0; i < 5; i++ {
		day := base.AddDate(0, 0, i*3)
		if _, err := db.Exec(`INSERT INTO sales (sku, date, qty) VALUES (?, ?, ?)`, "SPARSE-1", day, 3.0); err != nil {
			t.Fatalf("Failed to seed sales: %v", err)
		}
	}
}
