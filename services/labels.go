package services

import (
	"context"
	"errors"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/princinho/todoapi/models"
	"github.com/princinho/todoapi/repositories"
	"github.com/princinho/todoapi/utils"
	"go.mongodb.org/mongo-driver/v2/bson"
)

const (
	maxLabelName = 50

	msgLabelNotFound = "Label not found"
	msgLabelExists   = "Label with this name already exists"
	msgBadColor      = "Color must be a valid hex code (e.g., #FF5733)"
)

type LabelService struct {
	labels repositories.LabelStore
	tasks  repositories.TaskStore
	log    *slog.Logger
	now    func() time.Time
}

func NewLabelService(labels repositories.LabelStore, tasks repositories.TaskStore, log *slog.Logger) *LabelService {
	if log == nil {
		log = slog.Default()
	}
	return &LabelService{labels: labels, tasks: tasks, log: log, now: time.Now}
}

func (s *LabelService) Create(ctx context.Context, id Identity, name, color string) (*models.Label, error) {
	userID, err := id.ObjectID()
	if err != nil {
		return nil, err
	}
	name, err = labelName(name)
	if err != nil {
		return nil, err
	}
	color, ok := utils.NormalizeColor(color)
	if !ok {
		return nil, badRequest(msgBadColor)
	}

	l := &models.Label{
		Name:      name,
		Color:     color,
		UserID:    userID,
		CreatedAt: s.now().UTC(),
	}
	if err := s.labels.Create(ctx, l); err != nil {
		if errors.Is(err, repositories.ErrDuplicate) {
			return nil, conflict(msgLabelExists)
		}
		return nil, storageError("create label", err)
	}
	return l, nil
}

func (s *LabelService) List(ctx context.Context, id Identity) ([]models.Label, error) {
	userID, err := id.ObjectID()
	if err != nil {
		return nil, err
	}
	items, err := s.labels.List(ctx, userID)
	if err != nil {
		return nil, storageError("list labels", err)
	}
	return items, nil
}

func (s *LabelService) Get(ctx context.Context, id Identity, labelID string) (*models.Label, error) {
	userID, oid, err := ownedID(id, labelID, "Invalid label ID")
	if err != nil {
		return nil, err
	}
	l, err := s.labels.Get(ctx, userID, oid)
	if err != nil {
		return nil, labelStoreError("get label", err)
	}
	return l, nil
}

func (s *LabelService) Update(ctx context.Context, id Identity, labelID string, name, color *string) (*models.Label, error) {
	userID, oid, err := ownedID(id, labelID, "Invalid label ID")
	if err != nil {
		return nil, err
	}
	if name == nil && color == nil {
		return nil, badRequest("No fields to update")
	}

	var upd repositories.LabelUpdate
	if name != nil {
		n, err := labelName(*name)
		if err != nil {
			return nil, err
		}
		upd.Name = &n
	}
	if color != nil {
		c, ok := utils.NormalizeColor(*color)
		if !ok {
			return nil, badRequest(msgBadColor)
		}
		upd.Color = &c
	}

	l, err := s.labels.Update(ctx, userID, oid, upd)
	if err != nil {
		return nil, labelStoreError("update label", err)
	}
	return l, nil
}

// Delete removes the label and detaches it from every task of the user.
func (s *LabelService) Delete(ctx context.Context, id Identity, labelID string) error {
	userID, oid, err := ownedID(id, labelID, "Invalid label ID")
	if err != nil {
		return err
	}
	if err := s.labels.Delete(ctx, userID, oid); err != nil {
		return labelStoreError("delete label", err)
	}
	if err := s.tasks.PullLabel(ctx, userID, oid.Hex()); err != nil {
		return storageError("detach label from tasks", err)
	}
	return nil
}

// ProvisionDefaults gives a new account its starter labels. Labels the user
// already has are left alone.
func (s *LabelService) ProvisionDefaults(ctx context.Context, userID bson.ObjectID) error {
	now := s.now().UTC()
	for _, def := range models.DefaultLabels {
		l := &models.Label{
			Name:      def.Name,
			Color:     def.Color,
			UserID:    userID,
			CreatedAt: now,
		}
		if err := s.labels.EnsureLabel(ctx, l); err != nil {
			return storageError("provision label "+def.Name, err)
		}
	}
	s.log.Debug("labels.provisioned", "user_id", userID.Hex(), "count", len(models.DefaultLabels))
	return nil
}

func labelName(raw string) (string, error) {
	name := utils.NormalizeName(raw)
	if name == "" {
		return "", badRequest("Label name cannot be empty")
	}
	if utf8.RuneCountInString(name) > maxLabelName {
		return "", badRequest("Label name must be at most 50 characters")
	}
	return name, nil
}

func labelStoreError(op string, err error) error {
	switch {
	case errors.Is(err, repositories.ErrNotFound):
		return notFound(msgLabelNotFound)
	case errors.Is(err, repositories.ErrDuplicate):
		return conflict(msgLabelExists)
	}
	return storageError(op, err)
}

// ownedID parses the caller's user id and a resource id from the path.
func ownedID(id Identity, raw, msg string) (bson.ObjectID, bson.ObjectID, error) {
	userID, err := id.ObjectID()
	if err != nil {
		return bson.NilObjectID, bson.NilObjectID, err
	}
	oid, err := bson.ObjectIDFromHex(raw)
	if err != nil {
		return bson.NilObjectID, bson.NilObjectID, badRequest(msg)
	}
	return userID, oid, nil
}
