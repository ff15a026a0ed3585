package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	pfirestore "github.com/ordella/api/internal/platform/firestore"
)

const countersCollection = "counters"

type counterDocument struct {
	Value     int64     `firestore:"value"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

// CounterRepository issues monotonically increasing sequence values backed by a
// single document per counter name.
type CounterRepository struct {
	provider *pfirestore.Provider
	counters *pfirestore.BaseRepository[counterDocument]
}

// NewCounterRepository constructs a Firestore-backed counter repository.
func NewCounterRepository(provider *pfirestore.Provider) (*CounterRepository, error) {
	if provider == nil {
		return nil, errors.New("counter repository requires firestore provider")
	}
	return &CounterRepository{
		provider: provider,
		counters: pfirestore.NewBaseRepository[counterDocument](provider, countersCollection, nil, nil),
	}, nil
}

// Next increments and returns the named sequence. A missing counter starts at 1.
func (r *CounterRepository) Next(ctx context.Context, name string, now time.Time) (int64, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return 0, pfirestore.WrapError("counters.next", errors.New("counter name is required"))
	}

	var next int64
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.counters.DocumentRef(ctx, trimmed)
		if err != nil {
			return err
		}
		var doc counterDocument
		snap, err := tx.Get(ref)
		switch status.Code(err) {
		case codes.OK:
			if err := snap.DataTo(&doc); err != nil {
				return fmt.Errorf("firestore counters decode %s: %w", trimmed, err)
			}
		case codes.NotFound:
			// first use of this counter
		default:
			return err
		}
		doc.Value++
		doc.UpdatedAt = now.UTC()
		next = doc.Value
		return tx.Set(ref, doc)
	})
	if err != nil {
		return 0, passthroughRepoError("counters.next", err)
	}
	return next, nil
}
