package services

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/princinho/todoapi/models"
	"github.com/princinho/todoapi/repositories"
	"go.mongodb.org/mongo-driver/v2/bson"
)

const (
	maxTaskTitle       = 200
	maxTaskDescription = 1000

	msgTaskNotFound = "Task not found"
)

type TaskInput struct {
	Title       string
	Description *string
	Priority    models.Priority
	Deadline    time.Time
	LabelIDs    []string
}

// TaskPatch is a partial update; nil fields are left unchanged.
type TaskPatch struct {
	Title       *string
	Description *string
	Priority    *models.Priority
	Deadline    *time.Time
	Completed   *bool
	LabelIDs    *[]string
}

type TaskQuery struct {
	Priority  *models.Priority
	Completed *bool
	LabelIDs  []string
	Overdue   *bool
	SortBy    string
	Order     string
}

type TaskService struct {
	tasks repositories.TaskStore
	log   *slog.Logger
	now   func() time.Time
}

func NewTaskService(tasks repositories.TaskStore, log *slog.Logger) *TaskService {
	if log == nil {
		log = slog.Default()
	}
	return &TaskService{tasks: tasks, log: log, now: time.Now}
}

func (s *TaskService) Create(ctx context.Context, id Identity, in TaskInput) (*models.Task, error) {
	userID, err := id.ObjectID()
	if err != nil {
		return nil, err
	}

	title, err := taskTitle(in.Title)
	if err != nil {
		return nil, err
	}
	if err := checkDescription(in.Description); err != nil {
		return nil, err
	}
	if !in.Priority.Valid() {
		return nil, badRequest("Priority must be one of High, Medium, Low")
	}
	if in.Deadline.IsZero() {
		return nil, badRequest("Deadline is required")
	}
	labels, err := labelIDs(in.LabelIDs)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	t := &models.Task{
		Title:       title,
		Description: in.Description,
		Priority:    in.Priority,
		Deadline:    in.Deadline.UTC(),
		UserID:      userID,
		LabelIDs:    labels,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.tasks.Create(ctx, t); err != nil {
		return nil, storageError("create task", err)
	}
	return s.decorate(t), nil
}

// List returns the caller's tasks. Overdue is derived at read time, so that
// filter is applied after the store query.
func (s *TaskService) List(ctx context.Context, id Identity, q TaskQuery) ([]models.Task, error) {
	userID, err := id.ObjectID()
	if err != nil {
		return nil, err
	}

	labels, err := labelIDs(q.LabelIDs)
	if err != nil {
		return nil, err
	}
	f := repositories.TaskFilter{
		Priority:  q.Priority,
		Completed: q.Completed,
		LabelIDs:  labels,
		SortBy:    q.SortBy,
	}
	if f.SortBy == "" {
		f.SortBy = repositories.DefaultTaskSort
	}
	if _, ok := repositories.TaskSortFields[f.SortBy]; !ok {
		return nil, badRequest("Invalid sort field")
	}
	if f.Priority != nil && !f.Priority.Valid() {
		return nil, badRequest("Priority must be one of High, Medium, Low")
	}
	switch strings.ToLower(q.Order) {
	case "", "desc":
	case "asc":
		f.Ascending = true
	default:
		return nil, badRequest("Order must be asc or desc")
	}

	tasks, err := s.tasks.List(ctx, userID, f)
	if err != nil {
		return nil, storageError("list tasks", err)
	}

	now := s.now()
	out := make([]models.Task, 0, len(tasks))
	for _, t := range tasks {
		t.IsOverdue = t.Overdue(now)
		if q.Overdue != nil && *q.Overdue != t.IsOverdue {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (s *TaskService) Get(ctx context.Context, id Identity, taskID string) (*models.Task, error) {
	userID, oid, err := ownedID(id, taskID, "Invalid task ID")
	if err != nil {
		return nil, err
	}
	t, err := s.tasks.Get(ctx, userID, oid)
	if err != nil {
		return nil, taskStoreError("get task", err)
	}
	return s.decorate(t), nil
}

func (s *TaskService) Update(ctx context.Context, id Identity, taskID string, p TaskPatch) (*models.Task, error) {
	userID, oid, err := ownedID(id, taskID, "Invalid task ID")
	if err != nil {
		return nil, err
	}

	upd := repositories.TaskUpdate{
		Description: p.Description,
		Priority:    p.Priority,
		Deadline:    p.Deadline,
		Completed:   p.Completed,
		UpdatedAt:   s.now().UTC(),
	}
	if p.Title != nil {
		title, err := taskTitle(*p.Title)
		if err != nil {
			return nil, err
		}
		upd.Title = &title
	}
	if err := checkDescription(p.Description); err != nil {
		return nil, err
	}
	if p.Priority != nil && !p.Priority.Valid() {
		return nil, badRequest("Priority must be one of High, Medium, Low")
	}
	if p.LabelIDs != nil {
		labels, err := labelIDs(*p.LabelIDs)
		if err != nil {
			return nil, err
		}
		upd.LabelIDs = &labels
	}

	t, err := s.tasks.Update(ctx, userID, oid, upd)
	if err != nil {
		return nil, taskStoreError("update task", err)
	}
	return s.decorate(t), nil
}

func (s *TaskService) ToggleComplete(ctx context.Context, id Identity, taskID string) (*models.Task, error) {
	userID, oid, err := ownedID(id, taskID, "Invalid task ID")
	if err != nil {
		return nil, err
	}
	t, err := s.tasks.ToggleCompleted(ctx, userID, oid, s.now())
	if err != nil {
		return nil, taskStoreError("toggle task", err)
	}
	return s.decorate(t), nil
}

func (s *TaskService) Delete(ctx context.Context, id Identity, taskID string) error {
	userID, oid, err := ownedID(id, taskID, "Invalid task ID")
	if err != nil {
		return err
	}
	if err := s.tasks.Delete(ctx, userID, oid); err != nil {
		return taskStoreError("delete task", err)
	}
	return nil
}

func (s *TaskService) decorate(t *models.Task) *models.Task {
	t.IsOverdue = t.Overdue(s.now())
	return t
}

func taskTitle(raw string) (string, error) {
	title := strings.TrimSpace(raw)
	if title == "" {
		return "", badRequest("Title cannot be empty")
	}
	if utf8.RuneCountInString(title) > maxTaskTitle {
		return "", badRequest("Title must be at most 200 characters")
	}
	return title, nil
}

func checkDescription(d *string) error {
	if d != nil && utf8.RuneCountInString(*d) > maxTaskDescription {
		return badRequest("Description must be at most 1000 characters")
	}
	return nil
}

// labelIDs validates and de-duplicates label ids, keeping their order.
func labelIDs(raw []string) ([]string, error) {
	out := make([]string, 0, len(raw))
	for _, id := range raw {
		oid, err := bson.ObjectIDFromHex(strings.TrimSpace(id))
		if err != nil {
			return nil, badRequest("Invalid label ID")
		}
		if hex := oid.Hex(); !slices.Contains(out, hex) {
			out = append(out, hex)
		}
	}
	return out, nil
}

func taskStoreError(op string, err error) error {
	if errors.Is(err, repositories.ErrNotFound) {
		return notFound(msgTaskNotFound)
	}
	return storageError(op, err)
}
