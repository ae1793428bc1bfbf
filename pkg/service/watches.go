package service

import (
	"context"
	"encoding/json"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/pkg/errors"

	"video-accounts/pkg/auth"
	"video-accounts/pkg/database"
	"video-accounts/pkg/models"
)

const maxTitleLength = 255

// Uploader stores an exported document and returns where it was written.
type Uploader interface {
	Upload(ctx context.Context, key string, body []byte) (string, error)
}

type WatchInput struct {
	VideoTitle   string
	VideoURL     string
	WatchSeconds *int64
}

type Watches struct {
	repo     database.Repository
	uploader Uploader
	keyFor   func(userID uint) string
}

// NewWatches builds the watch-log service. uploader may be nil, in which
// case Export returns ErrExportDisabled.
func NewWatches(repo database.Repository, uploader Uploader, keyFor func(userID uint) string) *Watches {
	return &Watches{repo: repo, uploader: uploader, keyFor: keyFor}
}

func (in WatchInput) validate() error {
	title := strings.TrimSpace(in.VideoTitle)
	switch {
	case title == "":
		return invalid("video_title is required")
	case utf8.RuneCountInString(in.VideoTitle) > maxTitleLength:
		return invalid("video_title is too long")
	case strings.TrimSpace(in.VideoURL) == "":
		return invalid("video_url is required")
	case in.WatchSeconds == nil:
		return invalid("watch_seconds is required")
	case *in.WatchSeconds < 0:
		return invalid("watch_seconds must not be negative")
	case *in.WatchSeconds > math.MaxUint32:
		return invalid("watch_seconds is too large")
	}
	return nil
}

// Log records one watch event for the authenticated user. Zero seconds is a
// valid duration.
func (w *Watches) Log(ctx context.Context, who auth.Identity, in WatchInput) (*models.VideoWatchLog, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	entry := &models.VideoWatchLog{
		UserID:       who.ID,
		VideoTitle:   in.VideoTitle,
		VideoURL:     in.VideoURL,
		WatchSeconds: uint(*in.WatchSeconds),
	}
	if err := w.repo.CreateWatchLog(ctx, entry); err != nil {
		if errors.Is(err, database.ErrUserNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return entry, nil
}

func (w *Watches) List(ctx context.Context, who auth.Identity) ([]models.VideoWatchLog, error) {
	return w.repo.ListWatchLogs(ctx, who.ID)
}

// Export uploads the user's full watch history as a JSON array.
func (w *Watches) Export(ctx context.Context, who auth.Identity) (string, error) {
	if w.uploader == nil {
		return "", ErrExportDisabled
	}

	logs, err := w.repo.ListWatchLogs(ctx, who.ID)
	if err != nil {
		return "", err
	}
	if logs == nil {
		logs = []models.VideoWatchLog{}
	}

	body, err := json.Marshal(logs)
	if err != nil {
		return "", errors.Wrap(err, "encoding watch history")
	}
	return w.uploader.Upload(ctx, w.keyFor(who.ID), body)
}
