package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/princinho/todoapi/models"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

type MongoTaskStore struct {
	col *mongo.Collection
}

func NewMongoTaskStore(db *mongo.Database) *MongoTaskStore {
	return &MongoTaskStore{col: db.Collection(TasksCollection)}
}

func (s *MongoTaskStore) Create(ctx context.Context, t *models.Task) error {
	if t.LabelIDs == nil {
		t.LabelIDs = []string{}
	}
	res, err := s.col.InsertOne(ctx, t)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	if id, ok := res.InsertedID.(bson.ObjectID); ok {
		t.ID = id
	}
	return nil
}

func (s *MongoTaskStore) List(ctx context.Context, userID bson.ObjectID, f TaskFilter) ([]models.Task, error) {
	opts := options.Find().SetSort(taskSort(f))

	cursor, err := s.col.Find(ctx, taskListFilter(userID, f), opts)
	if err != nil {
		return nil, fmt.Errorf("find tasks: %w", err)
	}
	defer cursor.Close(ctx)

	tasks := make([]models.Task, 0)
	for cursor.Next(ctx) {
		var t models.Task
		if err := cursor.Decode(&t); err != nil {
			return nil, fmt.Errorf("decode task: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return tasks, nil
}

func (s *MongoTaskStore) Get(ctx context.Context, userID, id bson.ObjectID) (*models.Task, error) {
	var t models.Task
	if err := s.col.FindOne(ctx, bson.M{"_id": id, "userId": userID}).Decode(&t); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find task: %w", err)
	}
	return &t, nil
}

func (s *MongoTaskStore) Update(ctx context.Context, userID, id bson.ObjectID, upd TaskUpdate) (*models.Task, error) {
	return s.findAndModify(ctx, userID, id, bson.M{"$set": taskUpdateSet(upd)})
}

func (s *MongoTaskStore) ToggleCompleted(ctx context.Context, userID, id bson.ObjectID, at time.Time) (*models.Task, error) {
	return s.findAndModify(ctx, userID, id, toggleCompletedPipeline(at))
}

func (s *MongoTaskStore) Delete(ctx context.Context, userID, id bson.ObjectID) error {
	res, err := s.col.DeleteOne(ctx, bson.M{"_id": id, "userId": userID})
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoTaskStore) PullLabel(ctx context.Context, userID bson.ObjectID, labelID string) error {
	_, err := s.col.UpdateMany(ctx,
		bson.M{"userId": userID, "labelIds": labelID},
		bson.M{"$pull": bson.M{"labelIds": labelID}},
	)
	if err != nil {
		return fmt.Errorf("pull label from tasks: %w", err)
	}
	return nil
}

func (s *MongoTaskStore) findAndModify(ctx context.Context, userID, id bson.ObjectID, update any) (*models.Task, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var t models.Task
	if err := s.col.FindOneAndUpdate(ctx, bson.M{"_id": id, "userId": userID}, update, opts).Decode(&t); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("update task: %w", err)
	}
	return &t, nil
}

func taskListFilter(userID bson.ObjectID, f TaskFilter) bson.M {
	filter := bson.M{"userId": userID}
	if f.Priority != nil {
		filter["priority"] = string(*f.Priority)
	}
	if f.Completed != nil {
		filter["completed"] = *f.Completed
	}
	if len(f.LabelIDs) > 0 {
		filter["labelIds"] = bson.M{"$in": f.LabelIDs}
	}
	return filter
}

func taskSort(f TaskFilter) bson.D {
	field, ok := TaskSortFields[f.SortBy]
	if !ok {
		field = TaskSortFields[DefaultTaskSort]
	}
	dir := -1
	if f.Ascending {
		dir = 1
	}
	// _id breaks ties so equal keys keep a stable order
	return bson.D{{Key: field, Value: dir}, {Key: "_id", Value: dir}}
}

func taskUpdateSet(upd TaskUpdate) bson.M {
	set := bson.M{"updatedAt": upd.UpdatedAt}
	if upd.Title != nil {
		set["title"] = *upd.Title
	}
	if upd.Description != nil {
		set["description"] = *upd.Description
	}
	if upd.Priority != nil {
		set["priority"] = string(*upd.Priority)
	}
	if upd.Deadline != nil {
		set["deadline"] = upd.Deadline.UTC()
	}
	if upd.Completed != nil {
		set["completed"] = *upd.Completed
	}
	if upd.LabelIDs != nil {
		set["labelIds"] = *upd.LabelIDs
	}
	return set
}

func toggleCompletedPipeline(at time.Time) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$set", Value: bson.D{
			{Key: "completed", Value: bson.D{{Key: "$not", Value: bson.A{"$completed"}}}},
			{Key: "updatedAt", Value: at.UTC()},
		}}},
	}
}
