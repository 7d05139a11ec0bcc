// Package media abstracts blob storage for event images. A ref is the opaque
// string persisted in event rows; only the store that minted it can resolve it.
package media

import (
	"context"
	"io"
	"time"

	"github.com/planora/server/internal/metrics"
)

// Store is the blob storage port. Put stores the blob and returns its ref.
// Delete must be idempotent: deleting an absent ref succeeds.
type Store interface {
	Put(ctx context.Context, r io.Reader, suggestedName string) (string, error)
	Delete(ctx context.Context, ref string) error
}

// BlobInfo describes a stored blob for reconciliation sweeps.
type BlobInfo struct {
	Ref     string
	ModTime time.Time
}

// Lister is implemented by stores that can enumerate their blobs. The orphan
// sweep job uses it; stores without listing support are simply not swept.
type Lister interface {
	List(ctx context.Context) ([]BlobInfo, error)
}

func observe(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	metrics.BlobOperationsTotal.WithLabelValues(op, result).Inc()
}
