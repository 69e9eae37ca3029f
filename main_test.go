package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/princinho/todoapi/config"
	"github.com/princinho/todoapi/database"
	"github.com/princinho/todoapi/dto"
	"github.com/princinho/todoapi/logging"
	"github.com/princinho/todoapi/models"
	"github.com/princinho/todoapi/repositories"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	if err := dto.RegisterValidators(); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

func testConfig() *config.Config {
	return &config.Config{
		HTTPAddr:               ":0",
		AppName:                "TODO API",
		AppVersion:             "1.0.0",
		LogLevel:               "error",
		StorageBackend:         config.StorageMemory,
		AllowedOrigins:         []string{"http://localhost:3000"},
		ProvisionDefaultLabels: true,
		Auth: config.AuthConfig{
			Secret:     "test-secret",
			Algorithm:  "HS256",
			AccessTTL:  30 * time.Minute,
			RefreshTTL: 7 * 24 * time.Hour,
			BcryptCost: bcrypt.MinCost,
		},
	}
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	app, err := newApplication(testConfig(), logging.Discard(), repositories.NewMemoryStores(), database.NopPinger{})
	require.NoError(t, err)
	return setupRouter(app)
}

func call(t *testing.T, r http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func errorOf(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	return decode[map[string]string](t, w)["error"]
}

func registerAndLogin(t *testing.T, r http.Handler, email, username string) models.TokenPair {
	t.Helper()
	w := call(t, r, http.MethodPost, "/api/auth/register", "", gin.H{
		"email": email, "username": username, "password": "secret1",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = call(t, r, http.MethodPost, "/api/auth/login", "", gin.H{"email": email, "password": "secret1"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return decode[models.TokenPair](t, w)
}

func TestSessionLifecycle(t *testing.T) {
	r := newTestRouter(t)

	w := call(t, r, http.MethodPost, "/api/auth/register", "", gin.H{
		"email": "a@x.com", "username": "alice", "password": "secret1",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	user := decode[map[string]any](t, w)
	assert.Equal(t, "a@x.com", user["email"])
	assert.Equal(t, "alice", user["username"])
	assert.NotEmpty(t, user["id"])
	assert.NotContains(t, w.Body.String(), "password")

	w = call(t, r, http.MethodPost, "/api/auth/register", "", gin.H{
		"email": "a@x.com", "username": "alice2", "password": "secret1",
	})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "Email already registered", errorOf(t, w))

	w = call(t, r, http.MethodPost, "/api/auth/login", "", gin.H{"email": "a@x.com", "password": "secret1"})
	require.Equal(t, http.StatusOK, w.Code)
	p1 := decode[models.TokenPair](t, w)
	assert.Equal(t, "bearer", p1.TokenType)
	require.NotEmpty(t, p1.AccessToken)
	require.NotEmpty(t, p1.RefreshToken)

	w = call(t, r, http.MethodGet, "/api/auth/me", p1.AccessToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "alice", decode[map[string]any](t, w)["username"])

	// An access token is not accepted as a refresh token.
	w = call(t, r, http.MethodPost, "/api/auth/refresh", "", gin.H{"refresh_token": p1.AccessToken})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Invalid token type", errorOf(t, w))

	w = call(t, r, http.MethodPost, "/api/auth/refresh", "", gin.H{"refresh_token": p1.RefreshToken})
	require.Equal(t, http.StatusOK, w.Code)
	p2 := decode[models.TokenPair](t, w)
	assert.NotEqual(t, p1.RefreshToken, p2.RefreshToken)

	w = call(t, r, http.MethodPost, "/api/auth/refresh", "", gin.H{"refresh_token": p1.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Bearer", w.Header().Get("WWW-Authenticate"))

	w = call(t, r, http.MethodPost, "/api/auth/logout", p2.AccessToken, gin.H{"refresh_token": p2.RefreshToken})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Successfully logged out", decode[map[string]string](t, w)["message"])

	w = call(t, r, http.MethodPost, "/api/auth/logout", p2.AccessToken, gin.H{"refresh_token": p2.RefreshToken})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = call(t, r, http.MethodPost, "/api/auth/refresh", "", gin.H{"refresh_token": p2.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Access tokens stay valid until they expire.
	w = call(t, r, http.MethodGet, "/api/auth/me", p2.AccessToken, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestLoginFailuresLookAlike(t *testing.T) {
	r := newTestRouter(t)
	registerAndLogin(t, r, "a@x.com", "alice")

	wrong := call(t, r, http.MethodPost, "/api/auth/login", "", gin.H{"email": "a@x.com", "password": "nope123"})
	unknown := call(t, r, http.MethodPost, "/api/auth/login", "", gin.H{"email": "b@x.com", "password": "nope123"})

	assert.Equal(t, http.StatusUnauthorized, wrong.Code)
	assert.Equal(t, wrong.Code, unknown.Code)
	assert.Equal(t, wrong.Body.String(), unknown.Body.String())
	assert.Equal(t, "Incorrect email or password", errorOf(t, wrong))
}

func TestRegisterValidation(t *testing.T) {
	r := newTestRouter(t)

	cases := []struct {
		name string
		body gin.H
	}{
		{"bad email", gin.H{"email": "nope", "username": "alice", "password": "secret1"}},
		{"short username", gin.H{"email": "a@x.com", "username": "al", "password": "secret1"}},
		{"username with space", gin.H{"email": "a@x.com", "username": "al ice", "password": "secret1"}},
		{"short password", gin.H{"email": "a@x.com", "username": "alice", "password": "abc"}},
		{"long password", gin.H{"email": "a@x.com", "username": "alice", "password": strings.Repeat("p", 73)}},
		{"missing fields", gin.H{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := call(t, r, http.MethodPost, "/api/auth/register", "", tc.body)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
		})
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	r := newTestRouter(t)

	for _, path := range []string{"/api/auth/me", "/api/labels", "/api/tasks"} {
		w := call(t, r, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
		assert.Equal(t, "Bearer", w.Header().Get("WWW-Authenticate"), path)
	}

	w := call(t, r, http.MethodGet, "/api/tasks", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRefreshTokenIsNotAnAccessToken(t *testing.T) {
	r := newTestRouter(t)
	pair := registerAndLogin(t, r, "a@x.com", "alice")

	w := call(t, r, http.MethodGet, "/api/auth/me", pair.RefreshToken, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestPasswordChangeEndsSessions(t *testing.T) {
	r := newTestRouter(t)
	pair := registerAndLogin(t, r, "a@x.com", "alice")

	w := call(t, r, http.MethodPut, "/api/auth/me", pair.AccessToken, gin.H{
		"current_password": "wrong12", "new_password": "secret2",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = call(t, r, http.MethodPut, "/api/auth/me", pair.AccessToken, gin.H{
		"current_password": "secret1", "new_password": "secret2", "username": "alice_b",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "alice_b", decode[map[string]any](t, w)["username"])

	w = call(t, r, http.MethodPost, "/api/auth/refresh", "", gin.H{"refresh_token": pair.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = call(t, r, http.MethodPost, "/api/auth/login", "", gin.H{"email": "a@x.com", "password": "secret2"})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestLabelsAndTasks(t *testing.T) {
	r := newTestRouter(t)
	alice := registerAndLogin(t, r, "a@x.com", "alice")
	bob := registerAndLogin(t, r, "b@x.com", "bob")

	w := call(t, r, http.MethodGet, "/api/labels", alice.AccessToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]models.Label](t, w), len(models.DefaultLabels))

	w = call(t, r, http.MethodPost, "/api/labels", alice.AccessToken, gin.H{"name": "Home", "color": "#aabbcc"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	home := decode[models.Label](t, w)
	assert.Equal(t, "#AABBCC", home.Color)

	w = call(t, r, http.MethodPost, "/api/labels", alice.AccessToken, gin.H{"name": "Home", "color": "#000000"})
	assert.Equal(t, http.StatusConflict, w.Code)

	// Bob can use the same name.
	w = call(t, r, http.MethodPost, "/api/labels", bob.AccessToken, gin.H{"name": "Home", "color": "#000000"})
	assert.Equal(t, http.StatusCreated, w.Code)

	w = call(t, r, http.MethodPost, "/api/tasks", alice.AccessToken, gin.H{
		"title": "Pay rent", "priority": "High", "deadline": "2000-01-01", "label_ids": []string{home.ID.Hex()},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	late := decode[models.Task](t, w)
	assert.True(t, late.IsOverdue)
	assert.Equal(t, []string{home.ID.Hex()}, late.LabelIDs)

	w = call(t, r, http.MethodPost, "/api/tasks", alice.AccessToken, gin.H{
		"title": "Plan trip", "priority": "Low", "deadline": time.Now().Add(48 * time.Hour).UTC().Format(time.RFC3339),
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	future := decode[models.Task](t, w)
	assert.False(t, future.IsOverdue)

	w = call(t, r, http.MethodPost, "/api/tasks", alice.AccessToken, gin.H{"title": "No deadline", "priority": "Low"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = call(t, r, http.MethodGet, "/api/tasks?overdue=true", alice.AccessToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	overdue := decode[[]models.Task](t, w)
	require.Len(t, overdue, 1)
	assert.Equal(t, late.ID, overdue[0].ID)

	w = call(t, r, http.MethodGet, "/api/tasks?labels="+home.ID.Hex(), alice.AccessToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]models.Task](t, w), 1)

	w = call(t, r, http.MethodGet, "/api/tasks?sort_by=deadline&order=asc", alice.AccessToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	sorted := decode[[]models.Task](t, w)
	require.Len(t, sorted, 2)
	assert.Equal(t, late.ID, sorted[0].ID)

	w = call(t, r, http.MethodGet, "/api/tasks?sort_by=color", alice.AccessToken, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = call(t, r, http.MethodGet, "/api/tasks?completed=maybe", alice.AccessToken, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = call(t, r, http.MethodPatch, "/api/tasks/"+late.ID.Hex()+"/complete", alice.AccessToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	done := decode[models.Task](t, w)
	assert.True(t, done.Completed)
	assert.False(t, done.IsOverdue)

	w = call(t, r, http.MethodGet, "/api/tasks?completed=false", alice.AccessToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]models.Task](t, w), 1)

	w = call(t, r, http.MethodPut, "/api/tasks/"+future.ID.Hex(), alice.AccessToken, gin.H{"title": "Plan the trip", "priority": "Medium"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Plan the trip", decode[models.Task](t, w).Title)

	// Other users never see Alice's tasks.
	w = call(t, r, http.MethodGet, "/api/tasks/"+late.ID.Hex(), bob.AccessToken, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = call(t, r, http.MethodDelete, "/api/tasks/"+late.ID.Hex(), bob.AccessToken, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = call(t, r, http.MethodGet, "/api/tasks/not-an-id", alice.AccessToken, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Deleting a label detaches it from tasks.
	w = call(t, r, http.MethodDelete, "/api/labels/"+home.ID.Hex(), alice.AccessToken, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = call(t, r, http.MethodGet, "/api/tasks/"+late.ID.Hex(), alice.AccessToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[models.Task](t, w).LabelIDs)

	w = call(t, r, http.MethodDelete, "/api/tasks/"+late.ID.Hex(), alice.AccessToken, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = call(t, r, http.MethodGet, "/api/tasks/"+late.ID.Hex(), alice.AccessToken, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestOperationalEndpoints(t *testing.T) {
	r := newTestRouter(t)

	w := call(t, r, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", decode[map[string]string](t, w)["status"])
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	w = call(t, r, http.MethodGet, "/", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Welcome to TODO API", decode[map[string]string](t, w)["message"])

	registerAndLogin(t, r, "a@x.com", "alice")
	w = call(t, r, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `todo_auth_events_total{operation="login",outcome="success"} 1`)
	assert.Contains(t, w.Body.String(), "todo_http_requests_total")

	w = call(t, r, http.MethodGet, "/nowhere", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCORS(t *testing.T) {
	r := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Origin", "http://evil.example")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}
