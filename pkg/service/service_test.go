package service

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"

	"video-accounts/pkg/database"
	"video-accounts/pkg/database/databasetest"
	"video-accounts/pkg/models"
)

var errStoreDown = errors.New("dial tcp: connection refused")

// brokenRepo fails every call the way an unreachable store would.
type brokenRepo struct{}

func (brokenRepo) FindUserByUsername(context.Context, string) (*models.User, error) {
	return nil, errStoreDown
}
func (brokenRepo) FindUserByID(context.Context, uint) (*models.User, error) { return nil, errStoreDown }
func (brokenRepo) CreateUser(context.Context, *models.User) error           { return errStoreDown }
func (brokenRepo) UpdateUserExpiry(context.Context, uint, time.Time) error  { return errStoreDown }
func (brokenRepo) CreateWatchLog(context.Context, *models.VideoWatchLog) error {
	return errStoreDown
}
func (brokenRepo) ListWatchLogs(context.Context, uint) ([]models.VideoWatchLog, error) {
	return nil, errStoreDown
}
func (brokenRepo) Ping(context.Context) error { return errStoreDown }

var _ database.Repository = brokenRepo{}

func newTestStore(t *testing.T) *database.Store {
	t.Helper()
	return database.NewStore(databasetest.Open(t), time.Second)
}
