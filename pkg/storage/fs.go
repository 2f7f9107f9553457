package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/golang/snappy"
)

const artifactExt = ".model.sz"

// FileStore persists artifacts as snappy-compressed JSON files, one per
// SKU, under a single directory. It survives process restarts without any
// external service, which makes it the default for single-node
// deployments.
//
// Writes go through a temp file and rename so a crash mid-write never
// leaves a truncated artifact behind.
type FileStore struct {
	dir string
	mu  sync.RWMutex
}

// NewFileStore creates a filesystem-backed artifact store rooted at dir,
// creating the directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("artifact directory cannot be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create artifact directory %s: %w", dir, err)
	}
	return &FileStore{dir: dir}, nil
}

func (f *FileStore) path(sku string) string {
	return filepath.Join(f.dir, sku+artifactExt)
}

// Put stores an artifact, replacing any existing file for the SKU.
func (f *FileStore) Put(ctx context.Context, artifact Artifact) error {
	if err := validateSKU(artifact.SKU); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(artifact)
	if err != nil {
		return fmt.Errorf("failed to marshal artifact: %w", err)
	}
	compressed := snappy.Encode(nil, data)

	f.mu.Lock()
	defer f.mu.Unlock()

	tmp, err := os.CreateTemp(f.dir, artifact.SKU+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp artifact file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(compressed); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write artifact file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close artifact file: %w", err)
	}

	if err := os.Rename(tmpName, f.path(artifact.SKU)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to commit artifact file: %w", err)
	}
	return nil
}

// Get retrieves the artifact for a SKU. found is false when no file exists.
func (f *FileStore) Get(ctx context.Context, sku string) (Artifact, bool, error) {
	if err := validateSKU(sku); err != nil {
		return Artifact{}, false, err
	}
	if err := ctx.Err(); err != nil {
		return Artifact{}, false, err
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	compressed, err := os.ReadFile(f.path(sku))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Artifact{}, false, nil
		}
		return Artifact{}, false, fmt.Errorf("failed to read artifact file: %w", err)
	}

	data, err := snappy.Decode(nil, compressed)
	if err != nil {
		return Artifact{}, false, fmt.Errorf("failed to decompress artifact for %s: %w", sku, err)
	}

	var artifact Artifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		return Artifact{}, false, fmt.Errorf("failed to unmarshal artifact for %s: %w", sku, err)
	}
	return artifact, true, nil
}

// List reads every artifact file in the directory and returns the listing
// views. Files that fail to decode are skipped rather than failing the
// whole listing.
func (f *FileStore) List(ctx context.Context) ([]Info, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.RLock()
	entries, err := os.ReadDir(f.dir)
	f.mu.RUnlock()
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact directory: %w", err)
	}

	var infos []Info
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), artifactExt) {
			continue
		}
		sku := strings.TrimSuffix(entry.Name(), artifactExt)

		artifact, found, err := f.Get(ctx, sku)
		if err != nil || !found {
			continue
		}
		infos = append(infos, artifact.info())
	}
	return infos, nil
}

// Delete removes the artifact file for a SKU. Returns ErrNotFound when no
// file exists.
func (f *FileStore) Delete(ctx context.Context, sku string) error {
	if err := validateSKU(sku); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.path(sku)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to delete artifact file: %w", err)
	}
	return nil
}
