package services

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/raffleworks/raffle-backend/internal/config"
	"github.com/raffleworks/raffle-backend/internal/models"
	"github.com/raffleworks/raffle-backend/pkg/events"
	"github.com/raffleworks/raffle-backend/pkg/oracle"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// --- In-memory fakes ---

type memRoundRepo struct {
	round   *models.Round
	saveErr error
	saves   int
}

func (r *memRoundRepo) Load(ctx context.Context) (*models.Round, error) {
	if r.round == nil {
		return nil, mongo.ErrNoDocuments
	}
	cp := *r.round
	return &cp, nil
}

func (r *memRoundRepo) Save(ctx context.Context, round *models.Round) error {
	if r.saveErr != nil {
		return r.saveErr
	}
	cp := *round
	r.round = &cp
	r.saves++
	return nil
}

type memPayoutRepo struct {
	payouts []*models.Payout
}

func (r *memPayoutRepo) Create(ctx context.Context, payout *models.Payout) error {
	payout.ID = primitive.NewObjectID()
	cp := *payout
	r.payouts = append(r.payouts, &cp)
	return nil
}

func (r *memPayoutRepo) Update(ctx context.Context, payout *models.Payout) error {
	for i, p := range r.payouts {
		if p.ID == payout.ID {
			cp := *payout
			r.payouts[i] = &cp
			return nil
		}
	}
	return mongo.ErrNoDocuments
}

func (r *memPayoutRepo) FindByRequestID(ctx context.Context, requestID string) (*models.Payout, error) {
	for _, p := range r.payouts {
		if p.RequestID == requestID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, mongo.ErrNoDocuments
}

type fakeOracle struct {
	requests int
	err      error
}

func (o *fakeOracle) RequestRandomness(ctx context.Context, params oracle.RequestParams) (string, error) {
	if o.err != nil {
		return "", o.err
	}
	o.requests++
	return fmt.Sprintf("req-%d", o.requests), nil
}

type transferCall struct {
	to        string
	amount    int64
	reference string
}

type fakeLedger struct {
	transfers []transferCall
	err       error
}

func (l *fakeLedger) Transfer(ctx context.Context, to string, amount int64, reference string) error {
	if l.err != nil {
		return l.err
	}
	l.transfers = append(l.transfers, transferCall{to: to, amount: amount, reference: reference})
	return nil
}

// --- Test harness ---

type fixture struct {
	manager   *RoundManager
	roundRepo *memRoundRepo
	payouts   *memPayoutRepo
	oracle    *fakeOracle
	ledger    *fakeLedger
	sink      *events.MockSink
	clock     time.Time
}

func testConfig() *config.Config {
	return &config.Config{
		Raffle: config.RaffleConfig{
			EntranceFee:          10,
			MinInterval:          60 * time.Second,
			RerequestGracePeriod: 10 * time.Minute,
		},
		Oracle: config.OracleConfig{
			KeyHash:              "test-lane",
			SubscriptionID:       "sub-1",
			RequestConfirmations: 3,
			CallbackGasLimit:     100000,
		},
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		roundRepo: &memRoundRepo{},
		payouts:   &memPayoutRepo{},
		oracle:    &fakeOracle{},
		ledger:    &fakeLedger{},
		sink:      events.NewMockSink(),
		clock:     time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	manager, err := NewRoundManager(context.Background(), testConfig(), f.roundRepo, f.payouts, f.oracle, f.ledger, f.sink)
	require.NoError(t, err)
	manager.now = func() time.Time { return f.clock }
	// Reset the start time onto the test clock
	manager.round.StartTime = f.clock
	require.NoError(t, f.roundRepo.Save(context.Background(), manager.round))
	f.manager = manager
	return f
}

func (f *fixture) advance(d time.Duration) {
	f.clock = f.clock.Add(d)
}

// enterAndSettle drives the round to AWAITING_RANDOMNESS with the given
// entrants and returns the pending request id.
func (f *fixture) enterAndSettle(t *testing.T, entrants ...string) string {
	t.Helper()
	ctx := context.Background()
	for _, e := range entrants {
		require.NoError(t, f.manager.Enter(ctx, e, 10))
	}
	f.advance(61 * time.Second)
	requestID, err := f.manager.RequestSettlement(ctx)
	require.NoError(t, err)
	return requestID
}

// --- Entry gating ---

func TestEnterAcceptsPaidEntry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.manager.Enter(ctx, "addr-a", 10))

	snap := f.manager.Snapshot(ctx)
	assert.Equal(t, 1, snap.EntrantCount)
	assert.Equal(t, int64(10), snap.Balance)
	assert.Equal(t, models.RoundStatusOpen, snap.Status)
	assert.Equal(t, int64(10), f.roundRepo.round.Balance) // persisted
	assert.Equal(t, []string{"addr-a"}, f.roundRepo.round.Entrants)
}

func TestEnterKeepsOverpayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.manager.Enter(ctx, "addr-a", 25))

	assert.Equal(t, int64(25), f.manager.Snapshot(ctx).Balance)
}

func TestEnterRejectsInsufficientPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.manager.Enter(ctx, "addr-a", 5)
	require.ErrorIs(t, err, ErrInsufficientPayment)

	snap := f.manager.Snapshot(ctx)
	assert.Equal(t, 0, snap.EntrantCount)
	assert.Equal(t, int64(0), snap.Balance)
	assert.Empty(t, f.sink.Recorded())
}

func TestEnterRejectsMissingParticipant(t *testing.T) {
	f := newFixture(t)

	err := f.manager.Enter(context.Background(), "", 10)
	require.ErrorIs(t, err, ErrMissingParticipant)
}

func TestEnterRejectedWhileAwaitingRandomness(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.enterAndSettle(t, "addr-a")

	err := f.manager.Enter(ctx, "addr-b", 10)
	require.ErrorIs(t, err, ErrRoundNotOpen)

	snap := f.manager.Snapshot(ctx)
	assert.Equal(t, 1, snap.EntrantCount)
	assert.Equal(t, int64(10), snap.Balance)
}

func TestEnterAllowsDuplicateParticipant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.manager.Enter(ctx, "addr-a", 10))
	require.NoError(t, f.manager.Enter(ctx, "addr-a", 10))

	// Each entry is a separate weighted slot
	assert.Equal(t, 2, f.manager.Snapshot(ctx).EntrantCount)
	assert.Equal(t, int64(20), f.manager.Snapshot(ctx).Balance)
}

func TestEnterRevertsWhenPersistFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.roundRepo.saveErr = errors.New("mongo down")

	err := f.manager.Enter(ctx, "addr-a", 10)
	require.Error(t, err)

	f.roundRepo.saveErr = nil
	snap := f.manager.Snapshot(ctx)
	assert.Equal(t, 0, snap.EntrantCount)
	assert.Equal(t, int64(0), snap.Balance)
	assert.Empty(t, f.sink.Recorded())
}

// --- Eligibility ---

func TestEligibilityRequiresElapsedInterval(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.manager.Enter(ctx, "addr-a", 10))

	elig := f.manager.CheckEligibility(ctx)
	assert.False(t, elig.Eligible)
	assert.False(t, elig.IntervalElapsed)
	assert.True(t, elig.RoundOpen)
	assert.True(t, elig.HasBalance)
	assert.True(t, elig.HasPlayers)

	f.advance(60 * time.Second)
	elig = f.manager.CheckEligibility(ctx)
	assert.True(t, elig.Eligible)
	assert.True(t, elig.IntervalElapsed)
}

func TestEligibilityRequiresPlayers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.advance(2 * time.Minute)

	elig := f.manager.CheckEligibility(ctx)
	assert.False(t, elig.Eligible)
	assert.True(t, elig.IntervalElapsed)
	assert.False(t, elig.HasPlayers)
	assert.False(t, elig.HasBalance)
}

func TestEligibilityIsPure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.manager.Enter(ctx, "addr-a", 10))
	f.advance(30 * time.Second)

	first := f.manager.CheckEligibility(ctx)
	second := f.manager.CheckEligibility(ctx)
	assert.Equal(t, first, second)
}

// --- Settlement request protocol ---

func TestRequestSettlementNotEligibleCarriesDiagnostics(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.manager.Enter(ctx, "addr-a", 10))

	_, err := f.manager.RequestSettlement(ctx)
	var notEligible *NotEligibleError
	require.ErrorAs(t, err, &notEligible)
	assert.Equal(t, int64(10), notEligible.Eligibility.Balance)
	assert.Equal(t, 1, notEligible.Eligibility.EntrantCount)
	assert.Equal(t, models.RoundStatusOpen, notEligible.Eligibility.Status)
	assert.Equal(t, 0, f.oracle.requests)
}

func TestRequestSettlementWithNoPlayers(t *testing.T) {
	f := newFixture(t)
	f.advance(2 * time.Minute)

	_, err := f.manager.RequestSettlement(context.Background())
	var notEligible *NotEligibleError
	require.ErrorAs(t, err, &notEligible)
	assert.False(t, notEligible.Eligibility.HasPlayers)
}

func TestRequestSettlementIssuesExactlyOneRequest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	requestID := f.enterAndSettle(t, "addr-a")

	assert.Equal(t, "req-1", requestID)
	assert.Equal(t, 1, f.oracle.requests)

	snap := f.manager.Snapshot(ctx)
	assert.Equal(t, models.RoundStatusAwaitingRandomness, snap.Status)
	assert.Equal(t, requestID, snap.PendingRequestID)

	// A second request fails while the first is outstanding
	_, err := f.manager.RequestSettlement(ctx)
	var notEligible *NotEligibleError
	require.ErrorAs(t, err, &notEligible)
	assert.False(t, notEligible.Eligibility.RoundOpen)
	assert.Equal(t, 1, f.oracle.requests)
}

func TestRequestSettlementOracleFailureLeavesRoundOpen(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.manager.Enter(ctx, "addr-a", 10))
	f.advance(61 * time.Second)
	f.oracle.err = errors.New("oracle unavailable")

	_, err := f.manager.RequestSettlement(ctx)
	require.Error(t, err)

	snap := f.manager.Snapshot(ctx)
	assert.Equal(t, models.RoundStatusOpen, snap.Status)
	assert.Empty(t, snap.PendingRequestID)
}

// --- Randomness delivery and settlement ---

func TestSettlementSingleEntrant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	requestID := f.enterAndSettle(t, "addr-a")

	// Single entrant wins regardless of the random value
	err := f.manager.DeliverRandomness(ctx, requestID, []*big.Int{big.NewInt(987654321)})
	require.NoError(t, err)

	snap := f.manager.Snapshot(ctx)
	assert.Equal(t, models.RoundStatusOpen, snap.Status)
	assert.Equal(t, 0, snap.EntrantCount)
	assert.Equal(t, int64(0), snap.Balance)
	assert.Empty(t, snap.PendingRequestID)
	assert.Equal(t, "addr-a", snap.LastWinner)
	assert.Equal(t, int64(10), snap.LastPrizeAmount)
	assert.Equal(t, f.clock, snap.StartTime)

	require.Len(t, f.ledger.transfers, 1)
	assert.Equal(t, transferCall{to: "addr-a", amount: 10, reference: requestID}, f.ledger.transfers[0])

	payout, err := f.payouts.FindByRequestID(ctx, requestID)
	require.NoError(t, err)
	assert.Equal(t, models.PayoutStatusPaid, payout.Status)
}

func TestWinnerSelectionIsValueModuloEntrants(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	requestID := f.enterAndSettle(t, "addr-b", "addr-c")

	// 7 mod 2 = 1 -> second entrant wins
	err := f.manager.DeliverRandomness(ctx, requestID, []*big.Int{big.NewInt(7)})
	require.NoError(t, err)

	assert.Equal(t, "addr-c", f.manager.Snapshot(ctx).LastWinner)
	require.Len(t, f.ledger.transfers, 1)
	assert.Equal(t, int64(20), f.ledger.transfers[0].amount)
}

func TestWinnerSelectionHandlesHugeValues(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	requestID := f.enterAndSettle(t, "addr-a", "addr-b", "addr-c")

	// 2^200 mod 3 = 1 -> second entrant
	huge := new(big.Int).Lsh(big.NewInt(1), 200)
	err := f.manager.DeliverRandomness(ctx, requestID, []*big.Int{huge})
	require.NoError(t, err)

	assert.Equal(t, "addr-b", f.manager.Snapshot(ctx).LastWinner)
}

func TestDeliverRandomnessUnknownRequest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.enterAndSettle(t, "addr-a")

	err := f.manager.DeliverRandomness(ctx, "req-bogus", []*big.Int{big.NewInt(1)})
	require.ErrorIs(t, err, ErrUnknownRequest)

	snap := f.manager.Snapshot(ctx)
	assert.Equal(t, models.RoundStatusAwaitingRandomness, snap.Status)
	assert.Equal(t, int64(10), snap.Balance)
	assert.Empty(t, f.ledger.transfers)
}

func TestDeliverRandomnessWithNoPendingRequest(t *testing.T) {
	f := newFixture(t)

	err := f.manager.DeliverRandomness(context.Background(), "req-1", []*big.Int{big.NewInt(1)})
	require.ErrorIs(t, err, ErrUnknownRequest)
}

func TestSecondDeliveryIsStale(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	requestID := f.enterAndSettle(t, "addr-a")

	require.NoError(t, f.manager.DeliverRandomness(ctx, requestID, []*big.Int{big.NewInt(3)}))

	err := f.manager.DeliverRandomness(ctx, requestID, []*big.Int{big.NewInt(3)})
	require.ErrorIs(t, err, ErrStaleRequest)

	// No double payout
	assert.Len(t, f.ledger.transfers, 1)
}

func TestDeliverRandomnessRejectsEmptyValues(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	requestID := f.enterAndSettle(t, "addr-a")

	err := f.manager.DeliverRandomness(ctx, requestID, nil)
	require.ErrorIs(t, err, ErrNoRandomValues)

	// Round still waiting; a correct delivery can follow
	assert.Equal(t, models.RoundStatusAwaitingRandomness, f.manager.Snapshot(ctx).Status)
	require.NoError(t, f.manager.DeliverRandomness(ctx, requestID, []*big.Int{big.NewInt(0)}))
}

func TestTransferFailurePropagatesAfterStateCommit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	requestID := f.enterAndSettle(t, "addr-a", "addr-b")
	f.ledger.err = errors.New("ledger rejected transfer")

	err := f.manager.DeliverRandomness(ctx, requestID, []*big.Int{big.NewInt(0)})
	var transferErr *TransferError
	require.ErrorAs(t, err, &transferErr)
	assert.Equal(t, "addr-a", transferErr.Winner)
	assert.Equal(t, int64(20), transferErr.Amount)

	// Settlement state is committed despite the failed payout
	snap := f.manager.Snapshot(ctx)
	assert.Equal(t, models.RoundStatusOpen, snap.Status)
	assert.Equal(t, int64(0), snap.Balance)
	assert.Equal(t, "addr-a", snap.LastWinner)

	payout, ferr := f.payouts.FindByRequestID(ctx, requestID)
	require.NoError(t, ferr)
	assert.Equal(t, models.PayoutStatusFailed, payout.Status)
	assert.Contains(t, payout.ErrorMessage, "ledger rejected transfer")
}

func TestRoundRunsContinuously(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := f.enterAndSettle(t, "addr-a")
	require.NoError(t, f.manager.DeliverRandomness(ctx, first, []*big.Int{big.NewInt(5)}))

	// The round reopened; a full second cycle runs against fresh state
	second := f.enterAndSettle(t, "addr-b", "addr-c")
	require.NotEqual(t, first, second)
	require.NoError(t, f.manager.DeliverRandomness(ctx, second, []*big.Int{big.NewInt(4)}))

	assert.Equal(t, "addr-b", f.manager.Snapshot(ctx).LastWinner)
	assert.Len(t, f.ledger.transfers, 2)
}

// --- Notifications ---

func TestNotificationsMatchCommitOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	requestID := f.enterAndSettle(t, "addr-a", "addr-b")
	require.NoError(t, f.manager.DeliverRandomness(ctx, requestID, []*big.Int{big.NewInt(1)}))

	recorded := f.sink.Recorded()
	require.Len(t, recorded, 3)
	assert.Equal(t, events.TypeEnteredRound, recorded[0].Type)
	assert.Equal(t, "addr-a", recorded[0].Participant)
	assert.Equal(t, events.TypeEnteredRound, recorded[1].Type)
	assert.Equal(t, "addr-b", recorded[1].Participant)
	assert.Equal(t, events.TypeWinnerPicked, recorded[2].Type)
	assert.Equal(t, "addr-b", recorded[2].Participant)
	assert.Equal(t, int64(20), recorded[2].Amount)
}

// --- Stuck-round recovery ---

func TestRerequestRequiresPendingRequest(t *testing.T) {
	f := newFixture(t)

	_, err := f.manager.RerequestRandomness(context.Background())
	require.ErrorIs(t, err, ErrRequestNotStuck)
}

func TestRerequestRequiresGracePeriod(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.enterAndSettle(t, "addr-a")

	f.advance(5 * time.Minute)
	_, err := f.manager.RerequestRandomness(ctx)
	require.ErrorIs(t, err, ErrRequestNotStuck)
}

func TestRerequestReplacesStuckRequest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	oldID := f.enterAndSettle(t, "addr-a")

	f.advance(11 * time.Minute)
	newID, err := f.manager.RerequestRandomness(ctx)
	require.NoError(t, err)
	require.NotEqual(t, oldID, newID)

	// The superseded request can no longer settle the round
	err = f.manager.DeliverRandomness(ctx, oldID, []*big.Int{big.NewInt(1)})
	require.ErrorIs(t, err, ErrUnknownRequest)

	require.NoError(t, f.manager.DeliverRandomness(ctx, newID, []*big.Int{big.NewInt(1)}))
	assert.Equal(t, "addr-a", f.manager.Snapshot(ctx).LastWinner)
}

// --- Persistence across restarts ---

func TestManagerResumesPersistedRound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	requestID := f.enterAndSettle(t, "addr-a")

	// Simulate a restart against the same repository
	resumed, err := NewRoundManager(ctx, testConfig(), f.roundRepo, f.payouts, f.oracle, f.ledger, f.sink)
	require.NoError(t, err)
	resumed.now = func() time.Time { return f.clock }

	snap := resumed.Snapshot(ctx)
	assert.Equal(t, models.RoundStatusAwaitingRandomness, snap.Status)
	assert.Equal(t, requestID, snap.PendingRequestID)

	require.NoError(t, resumed.DeliverRandomness(ctx, requestID, []*big.Int{big.NewInt(1)}))
	assert.Equal(t, "addr-a", resumed.Snapshot(ctx).LastWinner)
}
