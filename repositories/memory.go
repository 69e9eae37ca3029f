package repositories

import (
	"bytes"
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/princinho/todoapi/models"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// NewMemoryStores returns thread-safe in-memory stores for tests and local
// development. Every method holds the store's lock for the whole operation, so
// each call is atomic the way a single-document Mongo update is.
func NewMemoryStores() Stores {
	return Stores{
		Users:         NewMemoryUserStore(),
		RefreshTokens: NewMemoryRefreshTokenStore(),
		Labels:        NewMemoryLabelStore(),
		Tasks:         NewMemoryTaskStore(),
	}
}

// ---------- Users ----------

type MemoryUserStore struct {
	mu    sync.RWMutex
	users map[bson.ObjectID]models.User
}

func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{users: make(map[bson.ObjectID]models.User)}
}

func (m *MemoryUserStore) Create(ctx context.Context, u *models.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.users {
		if existing.Email == u.Email || existing.Username == u.Username {
			return ErrDuplicate
		}
	}
	u.ID = bson.NewObjectID()
	m.users[u.ID] = *u
	return nil
}

func (m *MemoryUserStore) FindByID(ctx context.Context, id bson.ObjectID) (*models.User, error) {
	return m.find(ctx, func(u models.User) bool { return u.ID == id })
}

func (m *MemoryUserStore) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return m.find(ctx, func(u models.User) bool { return u.Email == email })
}

func (m *MemoryUserStore) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	return m.find(ctx, func(u models.User) bool { return u.Username == username })
}

func (m *MemoryUserStore) Update(ctx context.Context, id bson.ObjectID, upd UserUpdate) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	for otherID, other := range m.users {
		if otherID == id {
			continue
		}
		if (upd.Email != nil && other.Email == *upd.Email) || (upd.Username != nil && other.Username == *upd.Username) {
			return nil, ErrDuplicate
		}
	}

	if upd.Email != nil {
		u.Email = *upd.Email
	}
	if upd.Username != nil {
		u.Username = *upd.Username
	}
	if upd.PasswordHash != nil {
		u.PasswordHash = *upd.PasswordHash
	}
	u.UpdatedAt = upd.UpdatedAt
	m.users[id] = u
	return &u, nil
}

func (m *MemoryUserStore) find(ctx context.Context, match func(models.User) bool) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, u := range m.users {
		if match(u) {
			return &u, nil
		}
	}
	return nil, ErrNotFound
}

// ---------- Refresh tokens ----------

type MemoryRefreshTokenStore struct {
	mu     sync.Mutex
	tokens map[bson.ObjectID]models.RefreshToken
	now    func() time.Time
}

func NewMemoryRefreshTokenStore() *MemoryRefreshTokenStore {
	return &MemoryRefreshTokenStore{
		tokens: make(map[bson.ObjectID]models.RefreshToken),
		now:    time.Now,
	}
}

func (m *MemoryRefreshTokenStore) Record(ctx context.Context, userID bson.ObjectID, token string, expiresAt time.Time) (*models.RefreshToken, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	rt := models.RefreshToken{
		ID:        bson.NewObjectID(),
		UserID:    userID,
		TokenHash: HashToken(token),
		ExpiresAt: expiresAt.UTC(),
		CreatedAt: m.now().UTC(),
	}
	m.tokens[rt.ID] = rt
	return &rt, nil
}

func (m *MemoryRefreshTokenStore) FindActive(ctx context.Context, token string) (*models.RefreshToken, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	hash := HashToken(token)
	now := m.now()
	for _, rt := range m.tokens {
		if rt.TokenHash == hash && rt.Active(now) {
			return &rt, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryRefreshTokenStore) Revoke(ctx context.Context, id bson.ObjectID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	rt, ok := m.tokens[id]
	if !ok || rt.Revoked {
		return false, nil
	}
	m.revoke(rt)
	return true, nil
}

func (m *MemoryRefreshTokenStore) RevokeByTokenAndUser(ctx context.Context, token string, userID bson.ObjectID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	hash := HashToken(token)
	for _, rt := range m.tokens {
		if rt.TokenHash == hash && rt.UserID == userID && !rt.Revoked {
			m.revoke(rt)
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryRefreshTokenStore) RevokeAllForUser(ctx context.Context, userID bson.ObjectID) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for _, rt := range m.tokens {
		if rt.UserID == userID && !rt.Revoked {
			m.revoke(rt)
			n++
		}
	}
	return n, nil
}

// revoke must be called with mu held.
func (m *MemoryRefreshTokenStore) revoke(rt models.RefreshToken) {
	at := m.now().UTC()
	rt.Revoked = true
	rt.RevokedAt = &at
	m.tokens[rt.ID] = rt
}

// ---------- Labels ----------

type MemoryLabelStore struct {
	mu     sync.RWMutex
	labels map[bson.ObjectID]models.Label
}

func NewMemoryLabelStore() *MemoryLabelStore {
	return &MemoryLabelStore{labels: make(map[bson.ObjectID]models.Label)}
}

func (m *MemoryLabelStore) Create(ctx context.Context, l *models.Label) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.nameTaken(l.UserID, l.Name, bson.NilObjectID) {
		return ErrDuplicate
	}
	l.ID = bson.NewObjectID()
	m.labels[l.ID] = *l
	return nil
}

func (m *MemoryLabelStore) EnsureLabel(ctx context.Context, l *models.Label) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.nameTaken(l.UserID, l.Name, bson.NilObjectID) {
		return nil
	}
	l.ID = bson.NewObjectID()
	m.labels[l.ID] = *l
	return nil
}

func (m *MemoryLabelStore) List(ctx context.Context, userID bson.ObjectID) ([]models.Label, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	items := make([]models.Label, 0)
	for _, l := range m.labels {
		if l.UserID == userID {
			items = append(items, l)
		}
	}
	slices.SortFunc(items, func(a, b models.Label) int { return strings.Compare(a.Name, b.Name) })
	return items, nil
}

func (m *MemoryLabelStore) Get(ctx context.Context, userID, id bson.ObjectID) (*models.Label, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	l, ok := m.labels[id]
	if !ok || l.UserID != userID {
		return nil, ErrNotFound
	}
	return &l, nil
}

func (m *MemoryLabelStore) FindByName(ctx context.Context, userID bson.ObjectID, name string) (*models.Label, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, l := range m.labels {
		if l.UserID == userID && l.Name == name {
			return &l, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryLabelStore) Update(ctx context.Context, userID, id bson.ObjectID, upd LabelUpdate) (*models.Label, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.labels[id]
	if !ok || l.UserID != userID {
		return nil, ErrNotFound
	}
	if upd.Name != nil {
		if m.nameTaken(userID, *upd.Name, id) {
			return nil, ErrDuplicate
		}
		l.Name = *upd.Name
	}
	if upd.Color != nil {
		l.Color = *upd.Color
	}
	m.labels[id] = l
	return &l, nil
}

func (m *MemoryLabelStore) Delete(ctx context.Context, userID, id bson.ObjectID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.labels[id]
	if !ok || l.UserID != userID {
		return ErrNotFound
	}
	delete(m.labels, id)
	return nil
}

// nameTaken must be called with mu held.
func (m *MemoryLabelStore) nameTaken(userID bson.ObjectID, name string, except bson.ObjectID) bool {
	for id, l := range m.labels {
		if id != except && l.UserID == userID && l.Name == name {
			return true
		}
	}
	return false
}

// ---------- Tasks ----------

type MemoryTaskStore struct {
	mu    sync.RWMutex
	tasks map[bson.ObjectID]models.Task
}

func NewMemoryTaskStore() *MemoryTaskStore {
	return &MemoryTaskStore{tasks: make(map[bson.ObjectID]models.Task)}
}

func (m *MemoryTaskStore) Create(ctx context.Context, t *models.Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if t.LabelIDs == nil {
		t.LabelIDs = []string{}
	}
	t.ID = bson.NewObjectID()
	m.tasks[t.ID] = cloneTask(*t)
	return nil
}

func (m *MemoryTaskStore) List(ctx context.Context, userID bson.ObjectID, f TaskFilter) ([]models.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	tasks := make([]models.Task, 0)
	for _, t := range m.tasks {
		if t.UserID != userID {
			continue
		}
		if f.Priority != nil && t.Priority != *f.Priority {
			continue
		}
		if f.Completed != nil && t.Completed != *f.Completed {
			continue
		}
		if len(f.LabelIDs) > 0 && !slices.ContainsFunc(t.LabelIDs, func(id string) bool { return slices.Contains(f.LabelIDs, id) }) {
			continue
		}
		tasks = append(tasks, cloneTask(t))
	}

	cmp := taskComparator(f.SortBy)
	slices.SortFunc(tasks, func(a, b models.Task) int {
		c := cmp(a, b)
		if c == 0 {
			c = bytes.Compare(a.ID[:], b.ID[:])
		}
		if !f.Ascending {
			c = -c
		}
		return c
	})
	return tasks, nil
}

func (m *MemoryTaskStore) Get(ctx context.Context, userID, id bson.ObjectID) (*models.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.tasks[id]
	if !ok || t.UserID != userID {
		return nil, ErrNotFound
	}
	t = cloneTask(t)
	return &t, nil
}

func (m *MemoryTaskStore) Update(ctx context.Context, userID, id bson.ObjectID, upd TaskUpdate) (*models.Task, error) {
	return m.modify(ctx, userID, id, func(t *models.Task) {
		if upd.Title != nil {
			t.Title = *upd.Title
		}
		if upd.Description != nil {
			d := *upd.Description
			t.Description = &d
		}
		if upd.Priority != nil {
			t.Priority = *upd.Priority
		}
		if upd.Deadline != nil {
			t.Deadline = upd.Deadline.UTC()
		}
		if upd.Completed != nil {
			t.Completed = *upd.Completed
		}
		if upd.LabelIDs != nil {
			t.LabelIDs = slices.Clone(*upd.LabelIDs)
		}
		t.UpdatedAt = upd.UpdatedAt
	})
}

func (m *MemoryTaskStore) ToggleCompleted(ctx context.Context, userID, id bson.ObjectID, at time.Time) (*models.Task, error) {
	return m.modify(ctx, userID, id, func(t *models.Task) {
		t.Completed = !t.Completed
		t.UpdatedAt = at.UTC()
	})
}

func (m *MemoryTaskStore) Delete(ctx context.Context, userID, id bson.ObjectID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[id]
	if !ok || t.UserID != userID {
		return ErrNotFound
	}
	delete(m.tasks, id)
	return nil
}

func (m *MemoryTaskStore) PullLabel(ctx context.Context, userID bson.ObjectID, labelID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, t := range m.tasks {
		if t.UserID != userID || !slices.Contains(t.LabelIDs, labelID) {
			continue
		}
		t.LabelIDs = slices.DeleteFunc(slices.Clone(t.LabelIDs), func(s string) bool { return s == labelID })
		m.tasks[id] = t
	}
	return nil
}

func (m *MemoryTaskStore) modify(ctx context.Context, userID, id bson.ObjectID, apply func(*models.Task)) (*models.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[id]
	if !ok || t.UserID != userID {
		return nil, ErrNotFound
	}
	t = cloneTask(t)
	apply(&t)
	m.tasks[id] = t
	out := cloneTask(t)
	return &out, nil
}

func cloneTask(t models.Task) models.Task {
	t.LabelIDs = slices.Clone(t.LabelIDs)
	if t.Description != nil {
		d := *t.Description
		t.Description = &d
	}
	return t
}

// taskComparator orders tasks the way Mongo orders the mapped field: strings
// byte-wise, times chronologically.
func taskComparator(sortBy string) func(a, b models.Task) int {
	switch sortBy {
	case "updated_at":
		return func(a, b models.Task) int { return a.UpdatedAt.Compare(b.UpdatedAt) }
	case "deadline":
		return func(a, b models.Task) int { return a.Deadline.Compare(b.Deadline) }
	case "priority":
		return func(a, b models.Task) int { return strings.Compare(string(a.Priority), string(b.Priority)) }
	case "title":
		return func(a, b models.Task) int { return strings.Compare(a.Title, b.Title) }
	default:
		return func(a, b models.Task) int { return a.CreatedAt.Compare(b.CreatedAt) }
	}
}
