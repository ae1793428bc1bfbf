package service

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/pkg/errors"

	"video-accounts/pkg/auth"
	"video-accounts/pkg/database"
	"video-accounts/pkg/models"
)

// GracePeriod is how long registration and each renewal extend access.
const GracePeriod = 3 * 24 * time.Hour

const (
	maxUsernameLength = 255
	// bcrypt only accepts the first 72 bytes of a password.
	maxPasswordBytes = 72
)

func checkCredentials(username, password string) error {
	switch {
	case strings.TrimSpace(username) == "" || password == "":
		return invalid("username and password are required")
	case utf8.RuneCountInString(username) > maxUsernameLength:
		return invalid("username must be at most 255 characters")
	case len(password) > maxPasswordBytes:
		return invalid("password must be at most 72 bytes")
	}
	return nil
}

// TokenIssuer signs bearer tokens for authenticated users.
type TokenIssuer interface {
	Issue(id auth.Identity) (string, time.Time, error)
}

type Accounts struct {
	repo   database.Repository
	tokens TokenIssuer
	now    func() time.Time
}

func NewAccounts(repo database.Repository, tokens TokenIssuer) *Accounts {
	return &Accounts{repo: repo, tokens: tokens, now: time.Now}
}

type Session struct {
	Token     string
	UserID    uint
	ExpiresAt *time.Time
}

// Register creates an account with an initial expiry GracePeriod from now.
func (a *Accounts) Register(ctx context.Context, username, password string) (*models.User, error) {
	if err := checkCredentials(username, password); err != nil {
		return nil, err
	}

	if _, err := a.repo.FindUserByUsername(ctx, username); err == nil {
		return nil, ErrConflict
	} else if !errors.Is(err, database.ErrUserNotFound) {
		return nil, err
	}

	hashed, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}

	expiry := a.now().UTC().Add(GracePeriod)
	user := &models.User{
		Username:   username,
		Password:   hashed,
		ExpiryDate: &expiry,
	}
	if err := a.repo.CreateUser(ctx, user); err != nil {
		if errors.Is(err, database.ErrDuplicateUser) {
			return nil, ErrConflict
		}
		return nil, err
	}
	return user, nil
}

// Login checks the account expiry before the password, so an expired account
// is refused whatever password is given.
func (a *Accounts) Login(ctx context.Context, username, password string) (*Session, error) {
	if err := checkCredentials(username, password); err != nil {
		return nil, err
	}

	user, err := a.repo.FindUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, database.ErrUserNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if user.Expired(a.now()) {
		return nil, ErrAccountExpired
	}

	ok, err := auth.CheckPassword(password, user.Password)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}

	token, _, err := a.tokens.Issue(auth.Identity{ID: user.ID, Username: user.Username})
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, UserID: user.ID, ExpiresAt: user.ExpiryDate}, nil
}

// NextExpiry is max(now, current) + GracePeriod. A nil current expiry counts as now.
func NextExpiry(now time.Time, current *time.Time) time.Time {
	base := now
	if current != nil && current.After(now) {
		base = *current
	}
	return base.Add(GracePeriod).UTC()
}

// RenewExpiry extends the account's expiry. When caller is non-nil the caller
// must own the account.
func (a *Accounts) RenewExpiry(ctx context.Context, id uint, caller *auth.Identity) (time.Time, error) {
	if caller != nil && caller.ID != id {
		return time.Time{}, ErrForbidden
	}

	user, err := a.repo.FindUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, database.ErrUserNotFound) {
			return time.Time{}, ErrNotFound
		}
		return time.Time{}, err
	}

	next := NextExpiry(a.now(), user.ExpiryDate)
	if err := a.repo.UpdateUserExpiry(ctx, user.ID, next); err != nil {
		if errors.Is(err, database.ErrUserNotFound) {
			return time.Time{}, ErrNotFound
		}
		return time.Time{}, err
	}
	return next, nil
}
