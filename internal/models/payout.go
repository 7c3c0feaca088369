package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// PayoutStatus represents the state of a winner payout transfer
type PayoutStatus string

const (
	PayoutStatusPending PayoutStatus = "PENDING"
	PayoutStatusPaid    PayoutStatus = "PAID"
	PayoutStatusFailed  PayoutStatus = "FAILED"
)

// Payout records one attempt to transfer a settled prize to a winner.
// Settlement commits round state before the transfer runs, so a FAILED
// record is the hook for external reconciliation or retry.
type Payout struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	RequestID    string             `bson:"requestId" json:"requestId"`
	Winner       string             `bson:"winner" json:"winner"`
	Amount       int64              `bson:"amount" json:"amount"`
	Status       PayoutStatus       `bson:"status" json:"status"`
	ErrorMessage string             `bson:"errorMessage,omitempty" json:"errorMessage,omitempty"`
	CreatedAt    time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt    time.Time          `bson:"updatedAt" json:"updatedAt"`
}
