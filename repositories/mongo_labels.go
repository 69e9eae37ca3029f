package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/princinho/todoapi/models"
	"github.com/princinho/todoapi/utils"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

type MongoLabelStore struct {
	col *mongo.Collection
}

func NewMongoLabelStore(db *mongo.Database) *MongoLabelStore {
	return &MongoLabelStore{col: db.Collection(LabelsCollection)}
}

func (s *MongoLabelStore) Create(ctx context.Context, l *models.Label) error {
	res, err := s.col.InsertOne(ctx, l)
	if err != nil {
		if utils.IsDuplicateKey(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert label: %w", err)
	}
	if id, ok := res.InsertedID.(bson.ObjectID); ok {
		l.ID = id
	}
	return nil
}

func (s *MongoLabelStore) EnsureLabel(ctx context.Context, l *models.Label) error {
	filter := bson.M{"userId": l.UserID, "name": l.Name}
	update := bson.M{
		"$setOnInsert": bson.M{
			"userId":    l.UserID,
			"name":      l.Name,
			"color":     l.Color,
			"createdAt": l.CreatedAt,
		},
	}

	opts := options.UpdateOne().SetUpsert(true)

	res, err := s.col.UpdateOne(ctx, filter, update, opts)
	if err != nil {
		// lost an upsert race against the unique index; the label exists
		if utils.IsDuplicateKey(err) {
			return nil
		}
		return fmt.Errorf("upsert label: %w", err)
	}
	if id, ok := res.UpsertedID.(bson.ObjectID); ok {
		l.ID = id
	}
	return nil
}

func (s *MongoLabelStore) List(ctx context.Context, userID bson.ObjectID) ([]models.Label, error) {
	opts := options.Find().SetSort(bson.D{{Key: "name", Value: 1}})

	cursor, err := s.col.Find(ctx, bson.M{"userId": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("find labels: %w", err)
	}
	defer cursor.Close(ctx)

	items := make([]models.Label, 0)
	for cursor.Next(ctx) {
		var l models.Label
		if err := cursor.Decode(&l); err != nil {
			return nil, fmt.Errorf("decode label: %w", err)
		}
		items = append(items, l)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("iterate labels: %w", err)
	}
	return items, nil
}

func (s *MongoLabelStore) Get(ctx context.Context, userID, id bson.ObjectID) (*models.Label, error) {
	return s.findOne(ctx, bson.M{"_id": id, "userId": userID})
}

func (s *MongoLabelStore) FindByName(ctx context.Context, userID bson.ObjectID, name string) (*models.Label, error) {
	return s.findOne(ctx, bson.M{"userId": userID, "name": name})
}

func (s *MongoLabelStore) Update(ctx context.Context, userID, id bson.ObjectID, upd LabelUpdate) (*models.Label, error) {
	set := bson.M{}
	if upd.Name != nil {
		set["name"] = *upd.Name
	}
	if upd.Color != nil {
		set["color"] = *upd.Color
	}
	if len(set) == 0 {
		return s.Get(ctx, userID, id)
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var l models.Label
	err := s.col.FindOneAndUpdate(ctx, bson.M{"_id": id, "userId": userID}, bson.M{"$set": set}, opts).Decode(&l)
	if err != nil {
		switch {
		case errors.Is(err, mongo.ErrNoDocuments):
			return nil, ErrNotFound
		case utils.IsDuplicateKey(err):
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("update label: %w", err)
	}
	return &l, nil
}

func (s *MongoLabelStore) Delete(ctx context.Context, userID, id bson.ObjectID) error {
	res, err := s.col.DeleteOne(ctx, bson.M{"_id": id, "userId": userID})
	if err != nil {
		return fmt.Errorf("delete label: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoLabelStore) findOne(ctx context.Context, filter bson.M) (*models.Label, error) {
	var l models.Label
	if err := s.col.FindOne(ctx, filter).Decode(&l); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find label: %w", err)
	}
	return &l, nil
}
