package repositories

import (
	"context"

	"github.com/raffleworks/raffle-backend/internal/models"
)

// RoundRepository defines the interface for round state persistence.
// The round is a singleton document: Load returns it (or
// mongo.ErrNoDocuments before first initialization) and Save upserts it.
type RoundRepository interface {
	Load(ctx context.Context) (*models.Round, error)
	Save(ctx context.Context, round *models.Round) error
}

// PayoutRepository defines the interface for payout records
type PayoutRepository interface {
	Create(ctx context.Context, payout *models.Payout) error
	Update(ctx context.Context, payout *models.Payout) error
	FindByRequestID(ctx context.Context, requestID string) (*models.Payout, error)
}

// AdminUserRepository defines the interface for operator accounts
type AdminUserRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.AdminUser, error)
	Create(ctx context.Context, user *models.AdminUser) error
}
