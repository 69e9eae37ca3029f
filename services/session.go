// Package services holds the business logic behind the HTTP handlers: the
// session lifecycle (register, login, refresh, logout, authenticate), profile
// management, labels and tasks.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/princinho/todoapi/metrics"
	"github.com/princinho/todoapi/models"
	"github.com/princinho/todoapi/repositories"
	"github.com/princinho/todoapi/utils"
	"go.mongodb.org/mongo-driver/v2/bson"
)

const (
	TokenTypeBearer = "bearer"

	msgBadCredentials  = "Incorrect email or password"
	msgInvalidType     = "Invalid token type"
	msgInvalidToken    = "Could not validate credentials"
	msgInvalidRefresh  = "Invalid or expired refresh token"
	msgEmailTaken      = "Email already registered"
	msgUsernameTaken   = "Username already taken"
	msgUserExists      = "User already exists"
	msgUserNotFound    = "User not found"
	msgPasswordTooLong = "Password must be at most 72 bytes"
)

// LabelProvisioner creates the starter labels of a new account.
type LabelProvisioner interface {
	ProvisionDefaults(ctx context.Context, userID bson.ObjectID) error
}

// Identity is what a valid access token proves about its bearer.
type Identity struct {
	UserID string
	Email  string
}

// ObjectID parses the identity's user id.
func (id Identity) ObjectID() (bson.ObjectID, error) {
	oid, err := bson.ObjectIDFromHex(id.UserID)
	if err != nil {
		return bson.NilObjectID, unauthorized(msgInvalidToken)
	}
	return oid, nil
}

type SessionDeps struct {
	Users       repositories.UserStore
	Tokens      repositories.RefreshTokenStore
	Hasher      *utils.PasswordHasher
	Codec       *utils.TokenCodec
	Provisioner LabelProvisioner
	AccessTTL   time.Duration
	RefreshTTL  time.Duration
	Logger      *slog.Logger
	Metrics     *metrics.Metrics
}

type SessionManager struct {
	users       repositories.UserStore
	tokens      repositories.RefreshTokenStore
	hasher      *utils.PasswordHasher
	codec       *utils.TokenCodec
	provisioner LabelProvisioner
	accessTTL   time.Duration
	refreshTTL  time.Duration
	log         *slog.Logger
	metrics     *metrics.Metrics
	now         func() time.Time
}

func NewSessionManager(d SessionDeps) *SessionManager {
	log := d.Logger
	if log == nil {
		log = slog.Default()
	}
	return &SessionManager{
		users:       d.Users,
		tokens:      d.Tokens,
		hasher:      d.Hasher,
		codec:       d.Codec,
		provisioner: d.Provisioner,
		accessTTL:   d.AccessTTL,
		refreshTTL:  d.RefreshTTL,
		log:         log,
		metrics:     d.Metrics,
		now:         time.Now,
	}
}

// Register creates an account. Email is checked before username.
func (s *SessionManager) Register(ctx context.Context, email, username, password string) (models.PublicUser, error) {
	email = strings.TrimSpace(email)
	username = utils.NormalizeName(username)

	if err := s.ensureFree(ctx, email, username, bson.NilObjectID); err != nil {
		s.metrics.AuthEvent("register", outcome(err))
		return models.PublicUser{}, err
	}

	hash, err := s.hashPassword(password)
	if err != nil {
		s.metrics.AuthEvent("register", outcome(err))
		return models.PublicUser{}, err
	}

	now := s.now().UTC()
	user := &models.User{
		Email:        email,
		Username:     username,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repositories.ErrDuplicate) {
			s.metrics.AuthEvent("register", metrics.OutcomeRejected)
			return models.PublicUser{}, conflict(msgUserExists)
		}
		s.metrics.AuthEvent("register", metrics.OutcomeError)
		return models.PublicUser{}, storageError("create user", err)
	}

	if s.provisioner != nil {
		if err := s.provisioner.ProvisionDefaults(ctx, user.ID); err != nil {
			s.log.Warn("auth.register.provision_labels.fail", "err", err, "user_id", user.ID.Hex())
		}
	}

	s.metrics.AuthEvent("register", metrics.OutcomeSuccess)
	s.log.Info("auth.register", "user_id", user.ID.Hex())
	return user.Public(), nil
}

func (s *SessionManager) Login(ctx context.Context, email, password string) (*models.TokenPair, error) {
	email = strings.TrimSpace(email)

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			s.hasher.BurnCompare(password)
			s.metrics.AuthEvent("login", metrics.OutcomeRejected)
			return nil, unauthorized(msgBadCredentials)
		}
		s.metrics.AuthEvent("login", metrics.OutcomeError)
		return nil, storageError("find user", err)
	}
	if !s.hasher.VerifyPassword(password, user.PasswordHash) {
		s.metrics.AuthEvent("login", metrics.OutcomeRejected)
		s.log.Warn("auth.login.rejected", "user_id", user.ID.Hex())
		return nil, unauthorized(msgBadCredentials)
	}

	pair, err := s.issuePair(ctx, user.ID, user.Email)
	if err != nil {
		s.metrics.AuthEvent("login", metrics.OutcomeError)
		return nil, err
	}

	s.metrics.AuthEvent("login", metrics.OutcomeSuccess)
	s.log.Info("auth.login", "user_id", user.ID.Hex())
	return pair, nil
}

// Refresh exchanges a refresh token for a new pair. The presented token is
// revoked; of several concurrent calls with the same token only one wins.
func (s *SessionManager) Refresh(ctx context.Context, token string) (*models.TokenPair, error) {
	pair, err := s.refresh(ctx, token)
	s.metrics.AuthEvent("refresh", outcome(err))
	return pair, err
}

func (s *SessionManager) refresh(ctx context.Context, token string) (*models.TokenPair, error) {
	if typ, err := s.codec.TypeOf(token); err != nil || typ != utils.RefreshToken {
		return nil, unauthorized(msgInvalidType)
	}
	claims, err := s.codec.Decode(token)
	if err != nil {
		return nil, unauthorized(msgInvalidRefresh)
	}

	rec, err := s.tokens.FindActive(ctx, token)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			s.log.Warn("auth.refresh.unknown_token", "user_id", claims.Subject)
			return nil, unauthorized(msgInvalidRefresh)
		}
		return nil, storageError("find refresh token", err)
	}
	if rec.UserID.Hex() != claims.Subject {
		s.log.Warn("auth.refresh.subject_mismatch", "user_id", claims.Subject, "owner_id", rec.UserID.Hex())
		return nil, unauthorized(msgInvalidRefresh)
	}

	won, err := s.tokens.Revoke(ctx, rec.ID)
	if err != nil {
		return nil, storageError("revoke refresh token", err)
	}
	if !won {
		s.log.Warn("auth.refresh.replay", "user_id", claims.Subject)
		return nil, unauthorized(msgInvalidRefresh)
	}

	pair, err := s.issuePair(ctx, rec.UserID, claims.Email)
	if err != nil {
		return nil, err
	}
	s.log.Info("auth.refresh", "user_id", claims.Subject)
	return pair, nil
}

// Logout revokes one refresh token of the authenticated user.
func (s *SessionManager) Logout(ctx context.Context, id Identity, refreshToken string) error {
	userID, err := id.ObjectID()
	if err != nil {
		s.metrics.AuthEvent("logout", metrics.OutcomeRejected)
		return err
	}

	revoked, err := s.tokens.RevokeByTokenAndUser(ctx, refreshToken, userID)
	if err != nil {
		s.metrics.AuthEvent("logout", metrics.OutcomeError)
		return storageError("revoke refresh token", err)
	}
	if !revoked {
		s.metrics.AuthEvent("logout", metrics.OutcomeRejected)
		return badRequest("Invalid refresh token")
	}

	s.metrics.AuthEvent("logout", metrics.OutcomeSuccess)
	s.log.Info("auth.logout", "user_id", id.UserID)
	return nil
}

// Authenticate validates an access token. The user record is not re-read, so
// a token stays usable until it expires even if the account changed.
func (s *SessionManager) Authenticate(token string) (Identity, error) {
	if typ, err := s.codec.TypeOf(token); err != nil || typ != utils.AccessToken {
		s.metrics.AuthEvent("authenticate", metrics.OutcomeRejected)
		return Identity{}, unauthorized(msgInvalidToken)
	}
	claims, err := s.codec.Decode(token)
	if err != nil {
		s.metrics.AuthEvent("authenticate", metrics.OutcomeRejected)
		return Identity{}, unauthorized(msgInvalidToken)
	}
	return Identity{UserID: claims.Subject, Email: claims.Email}, nil
}

func (s *SessionManager) Me(ctx context.Context, id Identity) (models.PublicUser, error) {
	user, err := s.currentUser(ctx, id)
	if err != nil {
		return models.PublicUser{}, err
	}
	return user.Public(), nil
}

// ProfileUpdate carries the optional fields of a profile change.
type ProfileUpdate struct {
	Username        *string
	Email           *string
	CurrentPassword *string
	NewPassword     *string
}

// UpdateProfile changes username, email or password. A password change
// requires the current password and revokes every refresh token of the user.
func (s *SessionManager) UpdateProfile(ctx context.Context, id Identity, in ProfileUpdate) (models.PublicUser, error) {
	if in.Username == nil && in.Email == nil && in.NewPassword == nil {
		return models.PublicUser{}, badRequest("No changes provided")
	}

	user, err := s.currentUser(ctx, id)
	if err != nil {
		return models.PublicUser{}, err
	}

	upd := repositories.UserUpdate{UpdatedAt: s.now().UTC()}
	var email, username string
	if in.Email != nil {
		if email = strings.TrimSpace(*in.Email); email == "" {
			return models.PublicUser{}, badRequest("Email cannot be empty")
		}
		upd.Email = &email
	}
	if in.Username != nil {
		if username = utils.NormalizeName(*in.Username); username == "" {
			return models.PublicUser{}, badRequest("Username cannot be empty")
		}
		upd.Username = &username
	}
	if err := s.ensureFree(ctx, email, username, user.ID); err != nil {
		return models.PublicUser{}, err
	}

	if in.NewPassword != nil {
		if in.CurrentPassword == nil || !s.hasher.VerifyPassword(*in.CurrentPassword, user.PasswordHash) {
			return models.PublicUser{}, badRequest("Current password is incorrect")
		}
		hash, err := s.hashPassword(*in.NewPassword)
		if err != nil {
			return models.PublicUser{}, err
		}
		upd.PasswordHash = &hash
	}

	updated, err := s.users.Update(ctx, user.ID, upd)
	if err != nil {
		switch {
		case errors.Is(err, repositories.ErrDuplicate):
			return models.PublicUser{}, conflict(msgUserExists)
		case errors.Is(err, repositories.ErrNotFound):
			return models.PublicUser{}, notFound(msgUserNotFound)
		}
		return models.PublicUser{}, storageError("update user", err)
	}

	if upd.PasswordHash != nil {
		n, err := s.tokens.RevokeAllForUser(ctx, user.ID)
		if err != nil {
			return models.PublicUser{}, storageError("revoke refresh tokens", err)
		}
		s.log.Info("auth.password_changed", "user_id", id.UserID, "revoked_sessions", n)
	}
	s.log.Info("auth.profile_updated", "user_id", id.UserID)
	return updated.Public(), nil
}

func (s *SessionManager) currentUser(ctx context.Context, id Identity) (*models.User, error) {
	userID, err := id.ObjectID()
	if err != nil {
		return nil, err
	}
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, notFound(msgUserNotFound)
		}
		return nil, storageError("find user", err)
	}
	return user, nil
}

// ensureFree fails with a conflict when email or username belongs to a user
// other than self. Empty values are skipped.
func (s *SessionManager) ensureFree(ctx context.Context, email, username string, self bson.ObjectID) error {
	if email != "" {
		if err := s.checkTaken(ctx, s.users.FindByEmail, email, self, msgEmailTaken); err != nil {
			return err
		}
	}
	if username != "" {
		if err := s.checkTaken(ctx, s.users.FindByUsername, username, self, msgUsernameTaken); err != nil {
			return err
		}
	}
	return nil
}

func (s *SessionManager) checkTaken(ctx context.Context, find func(context.Context, string) (*models.User, error), value string, self bson.ObjectID, msg string) error {
	existing, err := find(ctx, value)
	switch {
	case errors.Is(err, repositories.ErrNotFound):
		return nil
	case err != nil:
		return storageError("find user", err)
	case existing.ID != self:
		return conflict(msg)
	}
	return nil
}

func (s *SessionManager) hashPassword(password string) (string, error) {
	hash, err := s.hasher.HashPassword(password)
	if err != nil {
		if errors.Is(err, utils.ErrPasswordTooLong) {
			return "", badRequest(msgPasswordTooLong)
		}
		return "", fmt.Errorf("hash password: %w", err)
	}
	return hash, nil
}

func (s *SessionManager) issuePair(ctx context.Context, userID bson.ObjectID, email string) (*models.TokenPair, error) {
	access, err := s.codec.Issue(userID.Hex(), email, utils.AccessToken, s.accessTTL)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}
	refresh, err := s.codec.Issue(userID.Hex(), email, utils.RefreshToken, s.refreshTTL)
	if err != nil {
		return nil, fmt.Errorf("issue refresh token: %w", err)
	}

	if _, err := s.tokens.Record(ctx, userID, refresh, s.now().Add(s.refreshTTL)); err != nil {
		return nil, storageError("record refresh token", err)
	}

	return &models.TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    TokenTypeBearer,
	}, nil
}

func outcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeSuccess
	case errors.Is(err, ErrStorage):
		return metrics.OutcomeError
	case errors.Is(err, ErrConflict), errors.Is(err, ErrUnauthorized), errors.Is(err, ErrBadRequest), errors.Is(err, ErrNotFound):
		return metrics.OutcomeRejected
	}
	return metrics.OutcomeError
}
