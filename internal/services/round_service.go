package services

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/raffleworks/raffle-backend/internal/config"
	"github.com/raffleworks/raffle-backend/internal/models"
	"github.com/raffleworks/raffle-backend/internal/repositories"
	"github.com/raffleworks/raffle-backend/pkg/events"
	"github.com/raffleworks/raffle-backend/pkg/oracle"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/exp/slog"
)

// Compile-time check to ensure RoundManager implements RoundService
var _ RoundService = (*RoundManager)(nil)

// RoundManager owns the raffle round state machine. All state lives in
// the singleton round record; every mutating operation runs under one
// lock and persists the round before any external interaction.
//
// Lifecycle: OPEN -> (eligible, settlement requested) ->
// AWAITING_RANDOMNESS -> (randomness delivered) -> settle + reset -> OPEN.
type RoundManager struct {
	mu sync.RWMutex

	round      *models.Round
	roundRepo  repositories.RoundRepository
	payoutRepo repositories.PayoutRepository
	oracle     RandomnessOracle
	ledger     Ledger
	sink       events.Sink

	entranceFee    int64
	minInterval    time.Duration
	rerequestGrace time.Duration
	requestParams  oracle.RequestParams

	now func() time.Time
}

// NewRoundManager creates a RoundManager, loading the persisted round
// or initializing a fresh one on first start.
func NewRoundManager(
	ctx context.Context,
	cfg *config.Config,
	roundRepo repositories.RoundRepository,
	payoutRepo repositories.PayoutRepository,
	rngOracle RandomnessOracle,
	ledgerClient Ledger,
	sink events.Sink,
) (*RoundManager, error) {
	m := &RoundManager{
		roundRepo:  roundRepo,
		payoutRepo: payoutRepo,
		oracle:     rngOracle,
		ledger:     ledgerClient,
		sink:       sink,

		entranceFee:    cfg.Raffle.EntranceFee,
		minInterval:    cfg.Raffle.MinInterval,
		rerequestGrace: cfg.Raffle.RerequestGracePeriod,
		requestParams: oracle.RequestParams{
			KeyHash:              cfg.Oracle.KeyHash,
			SubscriptionID:       cfg.Oracle.SubscriptionID,
			RequestConfirmations: cfg.Oracle.RequestConfirmations,
			CallbackGasLimit:     cfg.Oracle.CallbackGasLimit,
			NumWords:             1,
		},
		now: time.Now,
	}

	round, err := roundRepo.Load(ctx)
	if err != nil {
		if !errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("failed to load round state: %w", err)
		}
		round = models.NewRound(m.now())
		if err := roundRepo.Save(ctx, round); err != nil {
			return nil, fmt.Errorf("failed to initialize round state: %w", err)
		}
		slog.Info("Initialized new round", "startTime", round.StartTime)
	} else {
		slog.Info("Loaded persisted round", "status", round.Status, "entrants", len(round.Entrants), "balance", round.Balance)
	}
	m.round = round

	return m, nil
}

// Enter records a paid entry. The append and the balance credit commit
// as one unit under the round lock; rejected calls leave state
// untouched. Overpayment is kept by the pool, no change is given.
func (m *RoundManager) Enter(ctx context.Context, participant string, paidAmount int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if participant == "" {
		return ErrMissingParticipant
	}
	if m.round.Status != models.RoundStatusOpen {
		return ErrRoundNotOpen
	}
	if paidAmount < m.entranceFee {
		return ErrInsufficientPayment
	}

	m.round.Entrants = append(m.round.Entrants, participant)
	m.round.Balance += paidAmount

	if err := m.roundRepo.Save(ctx, m.round); err != nil {
		m.round.Entrants = m.round.Entrants[:len(m.round.Entrants)-1]
		m.round.Balance -= paidAmount
		slog.Error("Failed to persist entry", "error", err, "participant", participant)
		return fmt.Errorf("failed to persist entry: %w", err)
	}

	m.sink.EnteredRound(participant, paidAmount)
	slog.Info("Entry accepted", "participant", participant, "amount", paidAmount, "entrants", len(m.round.Entrants), "balance", m.round.Balance)
	return nil
}

// CheckEligibility reports whether the round can be settled right now.
// Pure read: two calls with no intervening mutation and no time passing
// return identical results.
func (m *RoundManager) CheckEligibility(ctx context.Context) models.Eligibility {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.eligibilityLocked(m.now())
}

// RequestSettlement checks eligibility and, still under the round lock,
// issues exactly one randomness request and transitions the round to
// AWAITING_RANDOMNESS. Holding the lock across the oracle call closes
// the window in which a second caller could also observe eligibility.
func (m *RoundManager) RequestSettlement(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	elig := m.eligibilityLocked(m.now())
	if !elig.Eligible {
		return "", &NotEligibleError{Eligibility: elig}
	}

	requestID, err := m.oracle.RequestRandomness(ctx, m.requestParams)
	if err != nil {
		return "", fmt.Errorf("randomness request failed: %w", err)
	}

	m.round.Status = models.RoundStatusAwaitingRandomness
	m.round.PendingRequestID = requestID
	m.round.RequestedAt = m.now()

	if err := m.roundRepo.Save(ctx, m.round); err != nil {
		// The oracle has already accepted the request; its delivery will
		// be rejected as unknown once state is rolled back.
		m.round.Status = models.RoundStatusOpen
		m.round.PendingRequestID = ""
		m.round.RequestedAt = time.Time{}
		slog.Error("Failed to persist settlement request, oracle request orphaned", "error", err, "requestId", requestID)
		return "", fmt.Errorf("failed to persist settlement request: %w", err)
	}

	slog.Info("Settlement requested", "requestId", requestID, "entrants", len(m.round.Entrants), "balance", m.round.Balance)
	return requestID, nil
}

// DeliverRandomness consumes a randomness delivery. The six settlement
// effects (winner, status, entrants, start time, balance, pending id)
// commit and persist as one unit before the prize transfer is invoked.
// A transfer failure propagates but does not roll settlement back; the
// FAILED payout record is the reconciliation hook.
func (m *RoundManager) DeliverRandomness(ctx context.Context, requestID string, randomValues []*big.Int) error {
	winner, amount, err := m.settle(ctx, requestID, randomValues)
	if err != nil {
		return err
	}

	payout := &models.Payout{
		RequestID: requestID,
		Winner:    winner,
		Amount:    amount,
		Status:    models.PayoutStatusPending,
	}
	if err := m.payoutRepo.Create(ctx, payout); err != nil {
		slog.Error("Failed to create payout record", "error", err, "requestId", requestID, "winner", winner)
	}

	if err := m.ledger.Transfer(ctx, winner, amount, requestID); err != nil {
		payout.Status = models.PayoutStatusFailed
		payout.ErrorMessage = err.Error()
		if uerr := m.payoutRepo.Update(ctx, payout); uerr != nil {
			slog.Error("Failed to mark payout as failed", "error", uerr, "requestId", requestID)
		}
		slog.Error("Prize transfer failed after settlement", "error", err, "winner", winner, "amount", amount, "requestId", requestID)
		return &TransferError{Winner: winner, Amount: amount, Err: err}
	}

	payout.Status = models.PayoutStatusPaid
	if err := m.payoutRepo.Update(ctx, payout); err != nil {
		slog.Error("Failed to mark payout as paid", "error", err, "requestId", requestID)
	}

	slog.Info("Prize paid", "winner", winner, "amount", amount, "requestId", requestID)
	return nil
}

// settle validates the delivery and applies the settlement effects
// under the round lock. Returns the winner and the snapshotted prize.
func (m *RoundManager) settle(ctx context.Context, requestID string, randomValues []*big.Int) (string, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.round.Status != models.RoundStatusAwaitingRandomness {
		if requestID != "" && requestID == m.round.LastSettledRequestID {
			return "", 0, ErrStaleRequest
		}
		return "", 0, ErrUnknownRequest
	}
	if requestID != m.round.PendingRequestID {
		return "", 0, ErrUnknownRequest
	}
	if len(randomValues) == 0 || randomValues[0] == nil {
		return "", 0, ErrNoRandomValues
	}

	// Entrants is non-empty here: the eligibility gate required players
	// before the request was issued and entries are blocked since.
	// The modulo carries a bias for ranges that are not an exact
	// multiple of len(entrants); the oracle's output space dwarfs any
	// practical entrant count, so it is accepted, not eliminated.
	count := big.NewInt(int64(len(m.round.Entrants)))
	winnerIndex := new(big.Int).Mod(randomValues[0], count).Int64()
	winner := m.round.Entrants[winnerIndex]
	amount := m.round.Balance

	prev := *m.round
	now := m.now()
	m.round.LastWinner = winner
	m.round.LastPrizeAmount = amount
	m.round.Status = models.RoundStatusOpen
	m.round.Entrants = []string{}
	m.round.StartTime = now
	m.round.Balance = 0
	m.round.LastSettledRequestID = requestID
	m.round.PendingRequestID = ""
	m.round.RequestedAt = time.Time{}

	if err := m.roundRepo.Save(ctx, m.round); err != nil {
		*m.round = prev
		slog.Error("Failed to persist settlement", "error", err, "requestId", requestID)
		return "", 0, fmt.Errorf("failed to persist settlement: %w", err)
	}

	m.sink.WinnerPicked(winner, amount)
	slog.Info("Winner picked", "winner", winner, "amount", amount, "winnerIndex", winnerIndex, "entrants", len(prev.Entrants))
	return winner, amount, nil
}

// RerequestRandomness replaces the pending randomness request once it
// has outlasted the grace period. The previous request id is dropped,
// so a late delivery for it will be rejected as unknown.
func (m *RoundManager) RerequestRandomness(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.round.Status != models.RoundStatusAwaitingRandomness {
		return "", ErrRequestNotStuck
	}
	if m.now().Sub(m.round.RequestedAt) < m.rerequestGrace {
		return "", ErrRequestNotStuck
	}

	requestID, err := m.oracle.RequestRandomness(ctx, m.requestParams)
	if err != nil {
		return "", fmt.Errorf("randomness re-request failed: %w", err)
	}

	prevID := m.round.PendingRequestID
	prevAt := m.round.RequestedAt
	m.round.PendingRequestID = requestID
	m.round.RequestedAt = m.now()

	if err := m.roundRepo.Save(ctx, m.round); err != nil {
		m.round.PendingRequestID = prevID
		m.round.RequestedAt = prevAt
		slog.Error("Failed to persist re-request, oracle request orphaned", "error", err, "requestId", requestID)
		return "", fmt.Errorf("failed to persist re-request: %w", err)
	}

	slog.Warn("Stuck randomness request replaced", "oldRequestId", prevID, "requestId", requestID)
	return requestID, nil
}

// Snapshot returns the public read model of the round
func (m *RoundManager) Snapshot(ctx context.Context) models.RoundSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return models.RoundSnapshot{
		Status:           m.round.Status,
		EntrantCount:     len(m.round.Entrants),
		Balance:          m.round.Balance,
		StartTime:        m.round.StartTime,
		LastWinner:       m.round.LastWinner,
		LastPrizeAmount:  m.round.LastPrizeAmount,
		PendingRequestID: m.round.PendingRequestID,
		EntranceFee:      m.entranceFee,
		MinInterval:      m.minInterval.String(),
	}
}

// eligibilityLocked evaluates the settlement gates. Callers must hold
// the round lock.
func (m *RoundManager) eligibilityLocked(now time.Time) models.Eligibility {
	elig := models.Eligibility{
		IntervalElapsed: now.Sub(m.round.StartTime) >= m.minInterval,
		RoundOpen:       m.round.Status == models.RoundStatusOpen,
		HasBalance:      m.round.Balance > 0,
		HasPlayers:      len(m.round.Entrants) > 0,
		Status:          m.round.Status,
		Balance:         m.round.Balance,
		EntrantCount:    len(m.round.Entrants),
	}
	elig.Eligible = elig.IntervalElapsed && elig.RoundOpen && elig.HasBalance && elig.HasPlayers
	return elig
}
