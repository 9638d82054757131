// internal/services/collaborators.go
package services

import (
	"context"

	"github.com/javajoker/coopfund-backend/internal/models"
)

// CapitalCustodian moves pooled funds. Implementations must honour the
// transaction carried by ctx for any local bookkeeping they do, so that a
// failed ledger operation leaves no trace in the custodian's tables either.
type CapitalCustodian interface {
	Transfer(ctx context.Context, amount int64, recipient, reference string) error
	Balance(ctx context.Context) (int64, error)
}

// InventoryRegistry owns physical batches and their unit-ownership records.
type InventoryRegistry interface {
	BatchExists(ctx context.Context, batchID string) (bool, error)
	ReassignOnLiquidation(ctx context.Context, batchIDs []string, newOwner string) error
	RegisterFutureBatch(ctx context.Context, owner string, project *models.GreenfieldProject) (string, error)
}

// IdentityRegistry answers capability checks for participant identities.
type IdentityRegistry interface {
	IsAuthorized(ctx context.Context, identity string, capability models.Capability) (bool, error)
}

func authorize(ctx context.Context, identities IdentityRegistry, actor string, capability models.Capability) error {
	ok, err := identities.IsAuthorized(ctx, actor, capability)
	if err != nil {
		return wrapError(CodeUnauthorized, "identity", actor, err, "capability check failed")
	}
	if !ok {
		return newError(CodeUnauthorized, "identity", actor, "missing capability %s", capability)
	}
	return nil
}
