package mongodb

import (
	"context"
	"time"

	"github.com/geocoder89/seodash/internal/domain/token"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const verificationLogsCollection = "verification_logs"

// auditRetention bounds how long verification attempts are kept.
const auditRetention = 90 * 24 * time.Hour

type VerificationLogsRepo struct {
	coll *mongo.Collection
}

// NewVerificationLogsRepo ensures the collection indexes, including the TTL
// index that ages out old entries.
func NewVerificationLogsRepo(ctx context.Context, db *mongo.Database) (*VerificationLogsRepo, error) {
	coll := db.Collection(verificationLogsCollection)

	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "email", Value: 1}, {Key: "created_at", Value: -1}},
		},
		{
			Keys:    bson.D{{Key: "created_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(int32(auditRetention.Seconds())),
		},
	}

	if _, err := coll.Indexes().CreateMany(ctx, indexes); err != nil {
		return nil, err
	}
	return &VerificationLogsRepo{coll: coll}, nil
}

func (r *VerificationLogsRepo) Insert(ctx context.Context, entry token.VerificationLog) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := r.coll.InsertOne(ctx, entry)
	return err
}
