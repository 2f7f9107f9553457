package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/demandcast/demandcast/pkg/training"
)

func testArtifact(sku string) Artifact {
	return Artifact{
		SKU:   sku,
		Model: json.RawMessage(`{"coeffs":[1,2,3]}`),
		Metrics: training.Metrics{
			MAE:              1.5,
			MAPE:             12.3,
			AccuracyCategory: training.AccuracyGood,
			TestSamples:      20,
			EvaluatedAt:      time.Now().UTC(),
		},
		TrainedAt: time.Now().UTC(),
	}
}

func TestNewMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	if store == nil {
		t.Fatal("NewMemoryStore() returned nil")
	}
	if store.Len() != 0 {
		t.Errorf("new store should be empty, got %d artifacts", store.Len())
	}
}

func TestMemoryStore_Put_Get(t *testing.T) {
	tests := []struct {
		name     string
		artifact Artifact
		wantErr  bool
	}{
		{
			name:     "valid artifact",
			artifact: testArtifact("WIDGET-42"),
			wantErr:  false,
		},
		{
			name: "empty sku",
			artifact: Artifact{
				Model:     json.RawMessage(`{}`),
				TrainedAt: time.Now(),
			},
			wantErr: true,
		},
		{
			name: "sku with path separator",
			artifact: Artifact{
				SKU:   "../etc/passwd",
				Model: json.RawMessage(`{}`),
			},
			wantErr: true,
		},
		{
			name:     "minimal valid artifact",
			artifact: Artifact{SKU: "minimal"},
			wantErr:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewMemoryStore()

			err := store.Put(context.Background(), tt.artifact)
			if (err != nil) != tt.wantErr {
				t.Errorf("Put() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr {
				return
			}

			got, found, err := store.Get(context.Background(), tt.artifact.SKU)
			if err != nil {
				t.Fatalf("Get() unexpected error = %v", err)
			}
			if !found {
				t.Fatal("Get() found = false, want true")
			}
			if got.SKU != tt.artifact.SKU {
				t.Errorf("SKU = %q, want %q", got.SKU, tt.artifact.SKU)
			}
			if string(got.Model) != string(tt.artifact.Model) {
				t.Errorf("Model = %s, want %s", got.Model, tt.artifact.Model)
			}
			if got.Metrics.MAPE != tt.artifact.Metrics.MAPE {
				t.Errorf("Metrics.MAPE = %v, want %v", got.Metrics.MAPE, tt.artifact.Metrics.MAPE)
			}
		})
	}
}

func TestMemoryStore_Get_NotFound(t *testing.T) {
	store := NewMemoryStore()

	artifact, found, err := store.Get(context.Background(), "nonexistent")
	if err != nil {
		t.Errorf("Get() unexpected error = %v", err)
	}
	if found {
		t.Error("Get() found = true for nonexistent sku, want false")
	}
	if artifact.SKU != "" {
		t.Errorf("Get() returned non-zero artifact: %+v", artifact)
	}
}

func TestMemoryStore_Put_Replaces(t *testing.T) {
	store := NewMemoryStore()
	sku := "WIDGET-1"

	first := testArtifact(sku)
	first.Metrics.MAPE = 30
	if err := store.Put(context.Background(), first); err != nil {
		t.Fatalf("Put() first artifact error = %v", err)
	}

	second := testArtifact(sku)
	second.Metrics.MAPE = 8
	if err := store.Put(context.Background(), second); err != nil {
		t.Fatalf("Put() second artifact error = %v", err)
	}

	got, found, err := store.Get(context.Background(), sku)
	if err != nil || !found {
		t.Fatalf("Get() = found %v, err %v", found, err)
	}
	if got.Metrics.MAPE != 8 {
		t.Errorf("Get() returned stale artifact, MAPE = %v, want 8", got.Metrics.MAPE)
	}
	if store.Len() != 1 {
		t.Errorf("Len() = %d after replace, want 1", store.Len())
	}
}

func TestMemoryStore_List(t *testing.T) {
	store := NewMemoryStore()

	skus := []string{"SKU-A", "SKU-B", "SKU-C"}
	for _, sku := range skus {
		if err := store.Put(context.Background(), testArtifact(sku)); err != nil {
			t.Fatalf("Put(%s) error = %v", sku, err)
		}
	}

	infos, err := store.List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(infos) != len(skus) {
		t.Fatalf("List() returned %d infos, want %d", len(infos), len(skus))
	}

	seen := make(map[string]bool)
	for _, info := range infos {
		seen[info.SKU] = true
		if info.TrainedAt.IsZero() {
			t.Errorf("List() info for %s has zero TrainedAt", info.SKU)
		}
	}
	for _, sku := range skus {
		if !seen[sku] {
			t.Errorf("List() missing sku %s", sku)
		}
	}
}

func TestMemoryStore_List_Empty(t *testing.T) {
	store := NewMemoryStore()

	infos, err := store.List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(infos) != 0 {
		t.Errorf("List() on empty store returned %d infos", len(infos))
	}
}

func TestMemoryStore_Delete(t *testing.T) {
	store := NewMemoryStore()
	sku := "WIDGET-9"

	if err := store.Put(context.Background(), testArtifact(sku)); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	if err := store.Delete(context.Background(), sku); err != nil {
		t.Errorf("Delete() error = %v", err)
	}
	if _, found, _ := store.Get(context.Background(), sku); found {
		t.Error("artifact still present after Delete()")
	}

	if err := store.Delete(context.Background(), sku); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete() error = %v, want ErrNotFound", err)
	}
}

func TestMemoryStore_CanceledContext(t *testing.T) {
	store := NewMemoryStore()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := store.Put(ctx, testArtifact("SKU-1")); !errors.Is(err, context.Canceled) {
		t.Errorf("Put() error = %v, want context.Canceled", err)
	}
	if _, _, err := store.Get(ctx, "SKU-1"); !errors.Is(err, context.Canceled) {
		t.Errorf("Get() error = %v, want context.Canceled", err)
	}
	if _, err := store.List(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("List() error = %v, want context.Canceled", err)
	}
	if err := store.Delete(ctx, "SKU-1"); !errors.Is(err, context.Canceled) {
		t.Errorf("Delete() error = %v, want context.Canceled", err)
	}
}

func TestMemoryStore_TTL_Expiry(t *testing.T) {
	store := NewMemoryStoreWithTTL(50*time.Millisecond, 10*time.Millisecond)
	defer store.Stop()

	artifact := testArtifact("EXPIRING")
	artifact.TrainedAt = time.Now()
	if err := store.Put(context.Background(), artifact); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	if _, found, _ := store.Get(context.Background(), "EXPIRING"); !found {
		t.Fatal("artifact missing immediately after Put()")
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, found, _ := store.Get(context.Background(), "EXPIRING"); !found {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Error("artifact was not expired by TTL cleanup")
}

func TestMemoryStore_Stop_Idempotent(t *testing.T) {
	store := NewMemoryStoreWithTTL(time.Minute, time.Minute)
	store.Stop()
	store.Stop()

	// Stop on a TTL-less store is a no-op.
	NewMemoryStore().Stop()
}

func TestMemoryStore_Concurrent(t *testing.T) {
	store := NewMemoryStore()

	numGoroutines := 50
	numOperations := 50

	var wg sync.WaitGroup

	wg.Add(numGoroutines)
	for i := range numGoroutines {
		go func(id int) {
			defer wg.Done()
			sku := fmt.Sprintf("SKU-%d", id%5)
			for range numOperations {
				if err := store.Put(context.Background(), testArtifact(sku)); err != nil {
					t.Errorf("concurrent Put() error = %v", err)
				}
			}
		}(i)
	}

	wg.Add(numGoroutines)
	for i := range numGoroutines {
		go func(id int) {
			defer wg.Done()
			sku := fmt.Sprintf("SKU-%d", id%5)
			for range numOperations {
				if _, _, err := store.Get(context.Background(), sku); err != nil {
					t.Errorf("concurrent Get() error = %v", err)
				}
				if _, err := store.List(context.Background()); err != nil {
					t.Errorf("concurrent List() error = %v", err)
				}
			}
		}(i)
	}

	wg.Wait()

	if store.Len() != 5 {
		t.Errorf("Len() = %d after concurrent writes to 5 skus, want 5", store.Len())
	}
}
