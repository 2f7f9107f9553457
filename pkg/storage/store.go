// Package storage provides trained model artifact stores.
//
// An artifact bundles everything needed to serve forecasts for one SKU:
// the serialized model state, the training metrics, and the training
// timestamp. Stores keep at most one artifact per SKU; a retrain replaces
// the previous artifact.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/demandcast/demandcast/pkg/training"
)

// ErrNotFound is returned by Delete when no artifact exists for the SKU.
var ErrNotFound = errors.New("model artifact not found")

// Artifact is a trained model plus its provenance for one SKU.
type Artifact struct {
	SKU       string           `json:"sku"`
	Model     json.RawMessage  `json:"model"`
	Metrics   training.Metrics `json:"metrics"`
	TrainedAt time.Time        `json:"trained_at"`
}

// Info is the listing view of an artifact, without the model blob.
type Info struct {
	SKU       string           `json:"sku"`
	TrainedAt time.Time        `json:"trained_at"`
	Metrics   training.Metrics `json:"metrics"`
}

// Store is the artifact persistence contract. Implementations must be safe
// for concurrent use.
type Store interface {
	// Put stores an artifact, replacing any existing artifact for the SKU.
	Put(ctx context.Context, artifact Artifact) error

	// Get retrieves the artifact for a SKU. found is false when none
	// exists; error is reserved for backend failures.
	Get(ctx context.Context, sku string) (Artifact, bool, error)

	// List returns the listing view of every stored artifact, in
	// unspecified order.
	List(ctx context.Context) ([]Info, error)

	// Delete removes the artifact for a SKU. Returns ErrNotFound when no
	// artifact exists.
	Delete(ctx context.Context, sku string) error
}

// validateSKU rejects SKUs that cannot serve as storage keys. The character
// set is restricted so the same SKU is a valid Redis key fragment and a
// valid file name.
func validateSKU(sku string) error {
	if sku == "" {
		return errors.New("sku required")
	}
	for _, c := range sku {
		if !((c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') ||
			(c >= '0' && c <= '9') || c == '-' || c == '_' || c == '.') {
			return fmt.Errorf("invalid sku %q: only alphanumeric, hyphens, underscores, and dots allowed", sku)
		}
	}
	return nil
}

func (a Artifact) info() Info {
	return Info{SKU: a.SKU, TrainedAt: a.TrainedAt, Metrics: a.Metrics}
}
