package repositories

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/princinho/todoapi/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
)

func TestMemoryUserStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryUserStore()

	u := &models.User{Email: "a@x.com", Username: "alice", PasswordHash: "h"}
	require.NoError(t, s.Create(ctx, u))
	assert.False(t, u.ID.IsZero())

	assert.ErrorIs(t, s.Create(ctx, &models.User{Email: "a@x.com", Username: "other"}), ErrDuplicate)
	assert.ErrorIs(t, s.Create(ctx, &models.User{Email: "b@x.com", Username: "alice"}), ErrDuplicate)
	// exact match only
	require.NoError(t, s.Create(ctx, &models.User{Email: "A@x.com", Username: "Alice"}))

	got, err := s.FindByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	got, err = s.FindByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	_, err = s.FindByID(ctx, bson.NewObjectID())
	assert.ErrorIs(t, err, ErrNotFound)

	name := "alice2"
	updated, err := s.Update(ctx, u.ID, UserUpdate{Username: &name, UpdatedAt: time.Now()})
	require.NoError(t, err)
	assert.Equal(t, "alice2", updated.Username)
	assert.Equal(t, "a@x.com", updated.Email)

	taken := "A@x.com"
	_, err = s.Update(ctx, u.ID, UserUpdate{Email: &taken})
	assert.ErrorIs(t, err, ErrDuplicate)

	// updating to one's own value is not a collision
	same := "a@x.com"
	_, err = s.Update(ctx, u.ID, UserUpdate{Email: &same})
	assert.NoError(t, err)

	_, err = s.Update(ctx, bson.NewObjectID(), UserUpdate{Username: &name})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryUserStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryUserStore()
	u := &models.User{Email: "a@x.com", Username: "alice"}
	require.NoError(t, s.Create(ctx, u))

	got, err := s.FindByID(ctx, u.ID)
	require.NoError(t, err)
	got.Email = "mutated@x.com"

	again, err := s.FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", again.Email)
}

func TestMemoryRefreshTokenStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryRefreshTokenStore()
	userID := bson.NewObjectID()

	rt, err := s.Record(ctx, userID, "tok-1", time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.NotEqual(t, "tok-1", rt.TokenHash)
	assert.Equal(t, HashToken("tok-1"), rt.TokenHash)
	assert.False(t, rt.Revoked)

	found, err := s.FindActive(ctx, "tok-1")
	require.NoError(t, err)
	assert.Equal(t, rt.ID, found.ID)

	_, err = s.FindActive(ctx, "tok-2")
	assert.ErrorIs(t, err, ErrNotFound)

	flipped, err := s.Revoke(ctx, rt.ID)
	require.NoError(t, err)
	assert.True(t, flipped)

	flipped, err = s.Revoke(ctx, rt.ID)
	require.NoError(t, err)
	assert.False(t, flipped, "second revoke is a no-op")

	_, err = s.FindActive(ctx, "tok-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryRefreshTokenStore_Expiry(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryRefreshTokenStore()
	now := time.Now()
	s.now = func() time.Time { return now }

	_, err := s.Record(ctx, bson.NewObjectID(), "tok", now.Add(time.Minute))
	require.NoError(t, err)
	_, err = s.FindActive(ctx, "tok")
	require.NoError(t, err)

	s.now = func() time.Time { return now.Add(time.Minute) }
	_, err = s.FindActive(ctx, "tok")
	assert.ErrorIs(t, err, ErrNotFound, "expiry is exclusive")
}

func TestMemoryRefreshTokenStore_RevokeByTokenAndUser(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryRefreshTokenStore()
	owner, stranger := bson.NewObjectID(), bson.NewObjectID()

	_, err := s.Record(ctx, owner, "tok", time.Now().Add(time.Hour))
	require.NoError(t, err)

	ok, err := s.RevokeByTokenAndUser(ctx, "tok", stranger)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.RevokeByTokenAndUser(ctx, "tok", owner)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.RevokeByTokenAndUser(ctx, "tok", owner)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryRefreshTokenStore_RevokeAllForUser(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryRefreshTokenStore()
	u1, u2 := bson.NewObjectID(), bson.NewObjectID()
	exp := time.Now().Add(time.Hour)

	for _, tok := range []string{"a", "b", "c"} {
		_, err := s.Record(ctx, u1, tok, exp)
		require.NoError(t, err)
	}
	_, err := s.Record(ctx, u2, "d", exp)
	require.NoError(t, err)

	n, err := s.RevokeAllForUser(ctx, u1)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	_, err = s.FindActive(ctx, "a")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.FindActive(ctx, "d")
	assert.NoError(t, err)
}

func TestMemoryRefreshTokenStore_ConcurrentRevoke(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryRefreshTokenStore()
	rt, err := s.Record(ctx, bson.NewObjectID(), "tok", time.Now().Add(time.Hour))
	require.NoError(t, err)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, err := s.Revoke(ctx, rt.ID); err == nil && ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, wins.Load())
}

func TestMemoryLabelStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryLabelStore()
	u1, u2 := bson.NewObjectID(), bson.NewObjectID()

	work := &models.Label{Name: "Work", Color: "#3B82F6", UserID: u1}
	require.NoError(t, s.Create(ctx, work))
	require.NoError(t, s.Create(ctx, &models.Label{Name: "Home", Color: "#10B981", UserID: u1}))
	assert.ErrorIs(t, s.Create(ctx, &models.Label{Name: "Work", UserID: u1}), ErrDuplicate)
	// names are scoped per user
	require.NoError(t, s.Create(ctx, &models.Label{Name: "Work", UserID: u2}))

	list, err := s.List(ctx, u1)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Home", list[0].Name)
	assert.Equal(t, "Work", list[1].Name)

	_, err = s.Get(ctx, u2, work.ID)
	assert.ErrorIs(t, err, ErrNotFound, "other users cannot see the label")

	home := "Home"
	_, err = s.Update(ctx, u1, work.ID, LabelUpdate{Name: &home})
	assert.ErrorIs(t, err, ErrDuplicate)

	color := "#000000"
	got, err := s.Update(ctx, u1, work.ID, LabelUpdate{Color: &color})
	require.NoError(t, err)
	assert.Equal(t, "#000000", got.Color)
	assert.Equal(t, "Work", got.Name)

	assert.ErrorIs(t, s.Delete(ctx, u2, work.ID), ErrNotFound)
	require.NoError(t, s.Delete(ctx, u1, work.ID))
	assert.ErrorIs(t, s.Delete(ctx, u1, work.ID), ErrNotFound)
}

func TestMemoryLabelStore_EnsureLabel(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryLabelStore()
	userID := bson.NewObjectID()

	require.NoError(t, s.EnsureLabel(ctx, &models.Label{Name: "Work", Color: "#3B82F6", UserID: userID}))
	require.NoError(t, s.EnsureLabel(ctx, &models.Label{Name: "Work", Color: "#FFFFFF", UserID: userID}))

	list, err := s.List(ctx, userID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "#3B82F6", list[0].Color, "existing label is left untouched")
}

func seedTask(t *testing.T, s *MemoryTaskStore, task models.Task) models.Task {
	t.Helper()
	require.NoError(t, s.Create(context.Background(), &task))
	return task
}

func TestMemoryTaskStore_ListFilters(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryTaskStore()
	owner := bson.NewObjectID()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	a := seedTask(t, s, models.Task{Title: "a", Priority: models.PriorityHigh, UserID: owner, LabelIDs: []string{"l1"}, CreatedAt: base})
	b := seedTask(t, s, models.Task{Title: "b", Priority: models.PriorityLow, UserID: owner, Completed: true, LabelIDs: []string{"l2"}, CreatedAt: base.Add(time.Hour)})
	c := seedTask(t, s, models.Task{Title: "c", Priority: models.PriorityHigh, UserID: owner, CreatedAt: base.Add(2 * time.Hour)})
	seedTask(t, s, models.Task{Title: "x", Priority: models.PriorityHigh, UserID: bson.NewObjectID(), CreatedAt: base})

	all, err := s.List(ctx, owner, TaskFilter{})
	require.NoError(t, err)
	assert.Equal(t, []bson.ObjectID{c.ID, b.ID, a.ID}, taskIDs(all), "newest first by default")

	high := models.PriorityHigh
	got, err := s.List(ctx, owner, TaskFilter{Priority: &high, Ascending: true})
	require.NoError(t, err)
	assert.Equal(t, []bson.ObjectID{a.ID, c.ID}, taskIDs(got))

	done := true
	got, err = s.List(ctx, owner, TaskFilter{Completed: &done})
	require.NoError(t, err)
	assert.Equal(t, []bson.ObjectID{b.ID}, taskIDs(got))

	got, err = s.List(ctx, owner, TaskFilter{LabelIDs: []string{"l1", "l2"}, SortBy: "title", Ascending: true})
	require.NoError(t, err)
	assert.Equal(t, []bson.ObjectID{a.ID, b.ID}, taskIDs(got))
}

func TestMemoryTaskStore_UpdateToggleDelete(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryTaskStore()
	owner := bson.NewObjectID()
	task := seedTask(t, s, models.Task{Title: "write docs", Priority: models.PriorityMedium, UserID: owner})

	title := "write more docs"
	labels := []string{"l1"}
	at := time.Now().UTC()
	got, err := s.Update(ctx, owner, task.ID, TaskUpdate{Title: &title, LabelIDs: &labels, UpdatedAt: at})
	require.NoError(t, err)
	assert.Equal(t, "write more docs", got.Title)
	assert.Equal(t, []string{"l1"}, got.LabelIDs)
	assert.Equal(t, models.PriorityMedium, got.Priority)
	assert.Equal(t, at, got.UpdatedAt)

	_, err = s.Update(ctx, bson.NewObjectID(), task.ID, TaskUpdate{Title: &title})
	assert.ErrorIs(t, err, ErrNotFound)

	got, err = s.ToggleCompleted(ctx, owner, task.ID, at)
	require.NoError(t, err)
	assert.True(t, got.Completed)
	got, err = s.ToggleCompleted(ctx, owner, task.ID, at)
	require.NoError(t, err)
	assert.False(t, got.Completed)

	require.NoError(t, s.PullLabel(ctx, owner, "l1"))
	got, err = s.Get(ctx, owner, task.ID)
	require.NoError(t, err)
	assert.Empty(t, got.LabelIDs)

	require.NoError(t, s.Delete(ctx, owner, task.ID))
	assert.ErrorIs(t, s.Delete(ctx, owner, task.ID), ErrNotFound)
}

func TestMemoryStores_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stores := NewMemoryStores()
	_, err := stores.Users.FindByEmail(ctx, "a@x.com")
	assert.ErrorIs(t, err, context.Canceled)
	_, err = stores.RefreshTokens.FindActive(ctx, "tok")
	assert.ErrorIs(t, err, context.Canceled)
}

func taskIDs(tasks []models.Task) []bson.ObjectID {
	ids := make([]bson.ObjectID, len(tasks))
	for i, t := range tasks {
		ids[i] = t.ID
	}
	return ids
}
