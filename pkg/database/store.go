package database

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"video-accounts/pkg/models"
)

var (
	ErrUserNotFound  = errors.New("user not found")
	ErrDuplicateUser = errors.New("username already exists")
)

// Repository is the narrow set of store operations the service layer needs.
type Repository interface {
	FindUserByUsername(ctx context.Context, username string) (*models.User, error)
	FindUserByID(ctx context.Context, id uint) (*models.User, error)
	CreateUser(ctx context.Context, user *models.User) error
	UpdateUserExpiry(ctx context.Context, id uint, expiry time.Time) error
	CreateWatchLog(ctx context.Context, log *models.VideoWatchLog) error
	ListWatchLogs(ctx context.Context, userID uint) ([]models.VideoWatchLog, error)
	Ping(ctx context.Context) error
}

// Store implements Repository with gorm. Every call is bounded by the
// acquire timeout so a saturated pool fails the request instead of hanging.
type Store struct {
	db      *gorm.DB
	timeout time.Duration
}

var _ Repository = (*Store)(nil)

func NewStore(db *gorm.DB, timeout time.Duration) *Store {
	return &Store{db: db, timeout: timeout}
}

func (s *Store) withTimeout(ctx context.Context) (*gorm.DB, context.CancelFunc) {
	if s.timeout <= 0 {
		return s.db.WithContext(ctx), func() {}
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	return s.db.WithContext(ctx), cancel
}

func (s *Store) FindUserByUsername(ctx context.Context, username string) (*models.User, error) {
	db, cancel := s.withTimeout(ctx)
	defer cancel()

	var user models.User
	if err := db.Where("username = ?", username).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, errors.Wrap(err, "finding user by username")
	}
	return &user, nil
}

func (s *Store) FindUserByID(ctx context.Context, id uint) (*models.User, error) {
	db, cancel := s.withTimeout(ctx)
	defer cancel()

	var user models.User
	if err := db.First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, errors.Wrap(err, "finding user by id")
	}
	return &user, nil
}

func (s *Store) CreateUser(ctx context.Context, user *models.User) error {
	db, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := db.Create(user).Error; err != nil {
		if isDuplicateKey(err) {
			return ErrDuplicateUser
		}
		return errors.Wrap(err, "creating user")
	}
	return nil
}

func (s *Store) UpdateUserExpiry(ctx context.Context, id uint, expiry time.Time) error {
	db, cancel := s.withTimeout(ctx)
	defer cancel()

	res := db.Model(&models.User{}).Where("id = ?", id).Update("expiry_date", expiry)
	if res.Error != nil {
		return errors.Wrap(res.Error, "updating expiry date")
	}
	if res.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (s *Store) CreateWatchLog(ctx context.Context, log *models.VideoWatchLog) error {
	db, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := db.Create(log).Error; err != nil {
		if errors.Is(err, gorm.ErrForeignKeyViolated) {
			return ErrUserNotFound
		}
		return errors.Wrap(err, "creating watch log")
	}
	return nil
}

func (s *Store) ListWatchLogs(ctx context.Context, userID uint) ([]models.VideoWatchLog, error) {
	db, cancel := s.withTimeout(ctx)
	defer cancel()

	var logs []models.VideoWatchLog
	err := db.Where("user_id = ?", userID).Order("watched_at DESC, id DESC").Find(&logs).Error
	if err != nil {
		return nil, errors.Wrap(err, "listing watch logs")
	}
	return logs, nil
}

func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.pingTimeout())
	defer cancel()
	return Ping(ctx, s.db)
}

func (s *Store) pingTimeout() time.Duration {
	if s.timeout > 0 {
		return s.timeout
	}
	return 5 * time.Second
}

func isDuplicateKey(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey)
}
