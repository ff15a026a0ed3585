package firestore

import (
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	pfirestore "github.com/ordella/api/internal/platform/firestore"
	"github.com/ordella/api/internal/repositories"
)

// notFoundStatusError builds a gRPC NotFound error so pfirestore.WrapError
// classifies it the same way a missing document read would be.
func notFoundStatusError(message string) error {
	return status.Error(codes.NotFound, message)
}

// passthroughRepoError preserves typed repository errors raised inside a
// transaction body and wraps everything else with Firestore semantics.
func passthroughRepoError(op string, err error) error {
	if err == nil {
		return nil
	}
	var stockErr *repositories.StockError
	if errors.As(err, &stockErr) {
		return err
	}
	var conflictErr *repositories.ConflictError
	if errors.As(err, &conflictErr) {
		return err
	}
	var repoErr *pfirestore.Error
	if errors.As(err, &repoErr) {
		return err
	}
	return pfirestore.WrapError(op, err)
}
