package mongodb

import (
	"context"
	"time"

	"github.com/raffleworks/raffle-backend/internal/models"
	"github.com/raffleworks/raffle-backend/internal/repositories"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// PayoutRepository implements the repositories.PayoutRepository interface
type PayoutRepository struct {
	collection *mongo.Collection
}

// NewPayoutRepository creates a new PayoutRepository
func NewPayoutRepository(db *mongo.Database) repositories.PayoutRepository {
	return &PayoutRepository{
		collection: db.Collection("payouts"),
	}
}

// Create creates a new payout record
func (r *PayoutRepository) Create(ctx context.Context, payout *models.Payout) error {
	payout.CreatedAt = time.Now()
	payout.UpdatedAt = time.Now()
	res, err := r.collection.InsertOne(ctx, payout)
	if err != nil {
		return err
	}
	payout.ID = res.InsertedID.(primitive.ObjectID)
	return nil
}

// Update updates a payout record
func (r *PayoutRepository) Update(ctx context.Context, payout *models.Payout) error {
	payout.UpdatedAt = time.Now()
	_, err := r.collection.ReplaceOne(ctx, bson.M{"_id": payout.ID}, payout)
	return err
}

// FindByRequestID finds the payout record for a randomness request
func (r *PayoutRepository) FindByRequestID(ctx context.Context, requestID string) (*models.Payout, error) {
	var payout models.Payout
	err := r.collection.FindOne(ctx, bson.M{"requestId": requestID}).Decode(&payout)
	if err != nil {
		return nil, err
	}
	return &payout, nil
}
