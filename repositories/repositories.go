// Package repositories holds the storage boundary of the API: typed stores for
// users, refresh tokens, labels and tasks, with a MongoDB implementation and an
// in-memory one for local development and tests.
package repositories

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/princinho/todoapi/models"
	"go.mongodb.org/mongo-driver/v2/bson"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate key")
)

const (
	UsersCollection         = "users"
	RefreshTokensCollection = "refresh_tokens"
	LabelsCollection        = "labels"
	TasksCollection         = "tasks"
)

type UserStore interface {
	// Create inserts u and assigns its ID. Returns ErrDuplicate when the email or
	// username is already taken.
	Create(ctx context.Context, u *models.User) error
	FindByID(ctx context.Context, id bson.ObjectID) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByUsername(ctx context.Context, username string) (*models.User, error)
	Update(ctx context.Context, id bson.ObjectID, upd UserUpdate) (*models.User, error)
}

// UserUpdate lists the fields a profile update may change. Nil means unchanged.
type UserUpdate struct {
	Email        *string
	Username     *string
	PasswordHash *string
	UpdatedAt    time.Time
}

// RefreshTokenStore persists issued refresh tokens. Tokens are looked up by
// value but only their SHA-256 digest is stored.
type RefreshTokenStore interface {
	Record(ctx context.Context, userID bson.ObjectID, token string, expiresAt time.Time) (*models.RefreshToken, error)
	// FindActive returns the record for token iff it is not revoked and expires
	// strictly after now. Otherwise ErrNotFound.
	FindActive(ctx context.Context, token string) (*models.RefreshToken, error)
	// Revoke flips revoked from false to true and reports whether this call did
	// the flip. Revoking an already revoked record is not an error.
	Revoke(ctx context.Context, id bson.ObjectID) (bool, error)
	RevokeByTokenAndUser(ctx context.Context, token string, userID bson.ObjectID) (bool, error)
	RevokeAllForUser(ctx context.Context, userID bson.ObjectID) (int64, error)
}

type LabelStore interface {
	Create(ctx context.Context, l *models.Label) error
	// EnsureLabel inserts l unless the user already has a label with that name.
	EnsureLabel(ctx context.Context, l *models.Label) error
	List(ctx context.Context, userID bson.ObjectID) ([]models.Label, error)
	Get(ctx context.Context, userID, id bson.ObjectID) (*models.Label, error)
	FindByName(ctx context.Context, userID bson.ObjectID, name string) (*models.Label, error)
	Update(ctx context.Context, userID, id bson.ObjectID, upd LabelUpdate) (*models.Label, error)
	Delete(ctx context.Context, userID, id bson.ObjectID) error
}

type LabelUpdate struct {
	Name  *string
	Color *string
}

type TaskStore interface {
	Create(ctx context.Context, t *models.Task) error
	List(ctx context.Context, userID bson.ObjectID, f TaskFilter) ([]models.Task, error)
	Get(ctx context.Context, userID, id bson.ObjectID) (*models.Task, error)
	Update(ctx context.Context, userID, id bson.ObjectID, upd TaskUpdate) (*models.Task, error)
	// ToggleCompleted flips the completed flag atomically and returns the task
	// after the change.
	ToggleCompleted(ctx context.Context, userID, id bson.ObjectID, at time.Time) (*models.Task, error)
	Delete(ctx context.Context, userID, id bson.ObjectID) error
	// PullLabel removes labelID from every task of the user.
	PullLabel(ctx context.Context, userID bson.ObjectID, labelID string) error
}

type TaskFilter struct {
	Priority  *models.Priority
	Completed *bool
	// LabelIDs matches tasks carrying any of the ids.
	LabelIDs  []string
	SortBy    string
	Ascending bool
}

type TaskUpdate struct {
	Title       *string
	Description *string
	Priority    *models.Priority
	Deadline    *time.Time
	Completed   *bool
	LabelIDs    *[]string
	UpdatedAt   time.Time
}

// Sortable task fields, keyed by their API name.
var TaskSortFields = map[string]string{
	"created_at": "createdAt",
	"updated_at": "updatedAt",
	"deadline":   "deadline",
	"priority":   "priority",
	"title":      "title",
}

const DefaultTaskSort = "created_at"

// Stores bundles one implementation of every store.
type Stores struct {
	Users         UserStore
	RefreshTokens RefreshTokenStore
	Labels        LabelStore
	Tasks         TaskStore
}

// HashToken returns the hex SHA-256 digest stored in place of a refresh token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
