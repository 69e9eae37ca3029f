package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/princinho/todoapi/models"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

type MongoRefreshTokenStore struct {
	col *mongo.Collection
	now func() time.Time
}

func NewMongoRefreshTokenStore(db *mongo.Database) *MongoRefreshTokenStore {
	return &MongoRefreshTokenStore{
		col: db.Collection(RefreshTokensCollection),
		now: time.Now,
	}
}

func (s *MongoRefreshTokenStore) Record(ctx context.Context, userID bson.ObjectID, token string, expiresAt time.Time) (*models.RefreshToken, error) {
	rt := &models.RefreshToken{
		UserID:    userID,
		TokenHash: HashToken(token),
		ExpiresAt: expiresAt.UTC(),
		CreatedAt: s.now().UTC(),
	}
	res, err := s.col.InsertOne(ctx, rt)
	if err != nil {
		return nil, fmt.Errorf("insert refresh token: %w", err)
	}
	if id, ok := res.InsertedID.(bson.ObjectID); ok {
		rt.ID = id
	}
	return rt, nil
}

func (s *MongoRefreshTokenStore) FindActive(ctx context.Context, token string) (*models.RefreshToken, error) {
	var rt models.RefreshToken
	err := s.col.FindOne(ctx, activeTokenFilter(HashToken(token), s.now())).Decode(&rt)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find refresh token: %w", err)
	}
	return &rt, nil
}

func (s *MongoRefreshTokenStore) Revoke(ctx context.Context, id bson.ObjectID) (bool, error) {
	res, err := s.col.UpdateOne(ctx, bson.M{"_id": id, "revoked": false}, revokeUpdate(s.now()))
	if err != nil {
		return false, fmt.Errorf("revoke refresh token: %w", err)
	}
	return res.ModifiedCount == 1, nil
}

func (s *MongoRefreshTokenStore) RevokeByTokenAndUser(ctx context.Context, token string, userID bson.ObjectID) (bool, error) {
	filter := bson.M{
		"tokenHash": HashToken(token),
		"userId":    userID,
		"revoked":   false,
	}
	res, err := s.col.UpdateOne(ctx, filter, revokeUpdate(s.now()))
	if err != nil {
		return false, fmt.Errorf("revoke refresh token: %w", err)
	}
	return res.ModifiedCount == 1, nil
}

func (s *MongoRefreshTokenStore) RevokeAllForUser(ctx context.Context, userID bson.ObjectID) (int64, error) {
	res, err := s.col.UpdateMany(ctx, bson.M{"userId": userID, "revoked": false}, revokeUpdate(s.now()))
	if err != nil {
		return 0, fmt.Errorf("revoke refresh tokens: %w", err)
	}
	return res.ModifiedCount, nil
}

func activeTokenFilter(hash string, now time.Time) bson.M {
	return bson.M{
		"tokenHash": hash,
		"revoked":   false,
		"expiresAt": bson.M{"$gt": now.UTC()},
	}
}

func revokeUpdate(now time.Time) bson.M {
	return bson.M{
		"$set": bson.M{
			"revoked":   true,
			"revokedAt": now.UTC(),
		},
	}
}
