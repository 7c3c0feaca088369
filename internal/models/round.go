package models

import (
	"time"
)

// RoundStatus represents the lifecycle status of the raffle round
type RoundStatus string

const (
	RoundStatusOpen               RoundStatus = "OPEN"
	RoundStatusAwaitingRandomness RoundStatus = "AWAITING_RANDOMNESS"
)

// RoundID is the fixed identifier of the singleton round document.
// The round is created once and reset in place; it is never replaced.
const RoundID = "current"

// Round represents the single raffle round. Only its mutable fields
// cycle between payouts; the document itself persists forever.
type Round struct {
	ID                   string      `bson:"_id" json:"id"`
	Status               RoundStatus `bson:"status" json:"status"`
	Entrants             []string    `bson:"entrants" json:"entrants"`
	Balance              int64       `bson:"balance" json:"balance"`
	StartTime            time.Time   `bson:"startTime" json:"startTime"`
	LastWinner           string      `bson:"lastWinner,omitempty" json:"lastWinner,omitempty"`
	LastPrizeAmount      int64       `bson:"lastPrizeAmount,omitempty" json:"lastPrizeAmount,omitempty"`
	PendingRequestID     string      `bson:"pendingRequestId,omitempty" json:"pendingRequestId,omitempty"`
	RequestedAt          time.Time   `bson:"requestedAt,omitempty" json:"requestedAt,omitempty"`
	LastSettledRequestID string      `bson:"lastSettledRequestId,omitempty" json:"lastSettledRequestId,omitempty"`
	CreatedAt            time.Time   `bson:"createdAt" json:"createdAt"`
	UpdatedAt            time.Time   `bson:"updatedAt" json:"updatedAt"`
}

// NewRound creates a fresh open round starting at the given time.
func NewRound(now time.Time) *Round {
	return &Round{
		ID:        RoundID,
		Status:    RoundStatusOpen,
		Entrants:  []string{},
		Balance:   0,
		StartTime: now,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Eligibility reports whether the round can be settled, with one flag
// per condition so callers can see exactly which gate failed.
type Eligibility struct {
	Eligible        bool        `json:"eligible"`
	IntervalElapsed bool        `json:"intervalElapsed"`
	RoundOpen       bool        `json:"roundOpen"`
	HasBalance      bool        `json:"hasBalance"`
	HasPlayers      bool        `json:"hasPlayers"`
	Status          RoundStatus `json:"status"`
	Balance         int64       `json:"balance"`
	EntrantCount    int         `json:"entrantCount"`
}

// RoundSnapshot is the public read model of the round. It exposes the
// entrant count rather than the entrant list itself.
type RoundSnapshot struct {
	Status           RoundStatus `json:"status"`
	EntrantCount     int         `json:"entrantCount"`
	Balance          int64       `json:"balance"`
	StartTime        time.Time   `json:"startTime"`
	LastWinner       string      `json:"lastWinner,omitempty"`
	LastPrizeAmount  int64       `json:"lastPrizeAmount,omitempty"`
	PendingRequestID string      `json:"pendingRequestId,omitempty"`
	EntranceFee      int64       `json:"entranceFee"`
	MinInterval      string      `json:"minInterval"`
}
