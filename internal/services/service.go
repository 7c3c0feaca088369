package services

import (
	"context"
	"math/big"

	"github.com/raffleworks/raffle-backend/internal/models"
	"github.com/raffleworks/raffle-backend/pkg/oracle"
)

// RoundService defines the interface for round lifecycle operations
type RoundService interface {
	// Enter records a paid entry into the current round
	Enter(ctx context.Context, participant string, paidAmount int64) error

	// CheckEligibility reports whether the round can be settled. It is
	// a pure read of round state and the current time.
	CheckEligibility(ctx context.Context) models.Eligibility

	// RequestSettlement issues a randomness request and moves the round
	// to AWAITING_RANDOMNESS. Returns the oracle request id.
	RequestSettlement(ctx context.Context) (string, error)

	// DeliverRandomness applies a randomness delivery: picks the winner,
	// resets the round and pays out the prize.
	DeliverRandomness(ctx context.Context, requestID string, randomValues []*big.Int) error

	// RerequestRandomness replaces a stuck randomness request after the
	// configured grace period. Operator-only recovery path.
	RerequestRandomness(ctx context.Context) (string, error)

	// Snapshot returns the public read model of the round
	Snapshot(ctx context.Context) models.RoundSnapshot
}

// AuthService defines the interface for operator authentication
type AuthService interface {
	// Login verifies operator credentials and returns a signed JWT
	Login(ctx context.Context, email, password string) (string, error)
}

// RandomnessOracle is the outbound oracle contract the round manager
// depends on. Satisfied by *oracle.Client.
type RandomnessOracle interface {
	RequestRandomness(ctx context.Context, params oracle.RequestParams) (string, error)
}

// Ledger is the outbound transfer contract. Satisfied by *ledger.Client.
type Ledger interface {
	Transfer(ctx context.Context, to string, amount int64, reference string) error
}
