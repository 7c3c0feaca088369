package mongodb

import (
	"context"
	"time"

	"github.com/raffleworks/raffle-backend/internal/models"
	"github.com/raffleworks/raffle-backend/internal/repositories"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// RoundRepository implements the repositories.RoundRepository interface
type RoundRepository struct {
	collection *mongo.Collection
}

// NewRoundRepository creates a new RoundRepository
func NewRoundRepository(db *mongo.Database) repositories.RoundRepository {
	return &RoundRepository{
		collection: db.Collection("round"),
	}
}

// Load loads the singleton round document
func (r *RoundRepository) Load(ctx context.Context) (*models.Round, error) {
	var round models.Round
	err := r.collection.FindOne(ctx, bson.M{"_id": models.RoundID}).Decode(&round)
	if err != nil {
		return nil, err // Returns mongo.ErrNoDocuments if not yet initialized
	}
	return &round, nil
}

// Save upserts the singleton round document
func (r *RoundRepository) Save(ctx context.Context, round *models.Round) error {
	round.UpdatedAt = time.Now()
	opts := options.Replace().SetUpsert(true)
	_, err := r.collection.ReplaceOne(ctx, bson.M{"_id": models.RoundID}, round, opts)
	return err
}
