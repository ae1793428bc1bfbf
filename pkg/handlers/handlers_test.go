package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"video-accounts/pkg/auth"
	"video-accounts/pkg/database"
	"video-accounts/pkg/database/databasetest"
	"video-accounts/pkg/handlers"
	"video-accounts/pkg/models"
	"video-accounts/pkg/service"
)

const testSecret = "test-secret"

type fixture struct {
	router http.Handler
	issuer *auth.TokenIssuer
	logs   *bytes.Buffer
}

type stubUploader struct{}

func (stubUploader) Upload(_ context.Context, key string, _ []byte) (string, error) {
	return "https://exports.s3.amazonaws.com/" + key, nil
}

func newFixture(t *testing.T, repo database.Repository, opts handlers.RouterOptions, uploader service.Uploader) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logs := &bytes.Buffer{}
	log := logrus.New()
	log.Out = logs

	issuer := auth.NewTokenIssuer(testSecret, 24*time.Hour)
	accounts := service.NewAccounts(repo, issuer)
	watches := service.NewWatches(repo, uploader, func(id uint) string { return "watch-exports/" + strconv.Itoa(int(id)) + "/x.json" })
	h := handlers.New(accounts, watches, repo, log)

	return &fixture{
		router: handlers.NewRouter(h, issuer, log, opts),
		issuer: issuer,
		logs:   logs,
	}
}

func newSQLiteFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixture(t, database.NewStore(databasetest.Open(t), time.Second), handlers.RouterOptions{}, nil)
}

func (f *fixture) do(t *testing.T, method, path, token string, body any) (int, map[string]any) {
	t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	out := map[string]any{}
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	}
	return w.Code, out
}

func (f *fixture) register(t *testing.T, username, password string) uint {
	t.Helper()
	status, body := f.do(t, http.MethodPost, "/api/create-user", "", map[string]string{"username": username, "password": password})
	require.Equal(t, http.StatusOK, status, body)
	return uint(body["id"].(float64))
}

func (f *fixture) login(t *testing.T, username, password string) string {
	t.Helper()
	status, body := f.do(t, http.MethodPost, "/api/login", "", map[string]string{"username": username, "password": password})
	require.Equal(t, http.StatusOK, status, body)
	return body["token"].(string)
}

func TestRegisterLoginFlow(t *testing.T) {
	f := newSQLiteFixture(t)

	status, body := f.do(t, http.MethodPost, "/api/create-user", "", map[string]string{"username": "ann", "password": "pw1"})
	require.Equal(t, http.StatusOK, status)
	require.NotZero(t, body["id"])
	require.Equal(t, "ann", body["username"])
	require.NotEmpty(t, body["expiresAt"])
	require.NotContains(t, body, "password")

	status, body = f.do(t, http.MethodPost, "/api/login", "", map[string]string{"username": "ann", "password": "pw1"})
	require.Equal(t, http.StatusOK, status)
	require.NotEmpty(t, body["token"])
	require.NotZero(t, body["id"])
	require.NotEmpty(t, body["expiresAt"])

	status, body = f.do(t, http.MethodPost, "/api/login", "", map[string]string{"username": "ann", "password": "wrong"})
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, "Invalid password", body["message"])

	status, body = f.do(t, http.MethodPost, "/api/login", "", map[string]string{"username": "bob", "password": "pw1"})
	require.Equal(t, http.StatusNotFound, status)
	require.Equal(t, "User not found", body["message"])

	require.NotContains(t, f.logs.String(), "pw1")
}

func TestRegisterValidation(t *testing.T) {
	f := newSQLiteFixture(t)

	for _, body := range []any{
		map[string]string{"username": "ann"},
		map[string]string{"password": "pw1"},
		map[string]string{"username": "", "password": "pw1"},
		"not json",
	} {
		status, out := f.do(t, http.MethodPost, "/api/create-user", "", body)
		require.Equal(t, http.StatusBadRequest, status)
		require.NotEmpty(t, out["message"])
	}
}

func TestRegisterCredentialLimits(t *testing.T) {
	f := newSQLiteFixture(t)

	tests := []struct {
		name     string
		username string
		password string
		status   int
	}{
		{name: "password at 72 bytes", username: "ann", password: strings.Repeat("p", 72), status: http.StatusOK},
		{name: "password over 72 bytes", username: "bob", password: strings.Repeat("p", 73), status: http.StatusBadRequest},
		{name: "username at 255 chars", username: strings.Repeat("u", 255), password: "pw1", status: http.StatusOK},
		{name: "username over 255 chars", username: strings.Repeat("v", 256), password: "pw1", status: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := f.do(t, http.MethodPost, "/api/create-user", "", map[string]string{"username": tt.username, "password": tt.password})
			require.Equal(t, tt.status, status, body)
			if tt.status == http.StatusBadRequest {
				require.NotEqual(t, "Failed to create user", body["message"])
			}
		})
	}
	require.NotContains(t, f.logs.String(), "level=error")
}

func TestLoginRejectsOversizedPassword(t *testing.T) {
	f := newSQLiteFixture(t)
	f.register(t, "ann", "pw1")

	status, _ := f.do(t, http.MethodPost, "/api/login", "", map[string]string{"username": "ann", "password": strings.Repeat("p", 73)})
	require.Equal(t, http.StatusBadRequest, status)
}

func TestRegisterDuplicateUsername(t *testing.T) {
	f := newSQLiteFixture(t)
	f.register(t, "ann", "pw1")

	status, body := f.do(t, http.MethodPost, "/api/create-user", "", map[string]string{"username": "ann", "password": "pw2"})
	require.Equal(t, http.StatusConflict, status)
	require.Equal(t, "Username already exists", body["message"])
}

func TestLoginValidation(t *testing.T) {
	f := newSQLiteFixture(t)

	status, _ := f.do(t, http.MethodPost, "/api/login", "", map[string]string{"username": "ann"})
	require.Equal(t, http.StatusBadRequest, status)
}

func TestRenewExpiry(t *testing.T) {
	f := newSQLiteFixture(t)
	id := f.register(t, "ann", "pw1")

	status, body := f.do(t, http.MethodPut, "/api/renew-expiry/"+strconv.Itoa(int(id)), "", nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, float64(id), body["id"])

	next, err := time.Parse(time.RFC3339, body["newExpiryDate"].(string))
	require.NoError(t, err)
	require.WithinDuration(t, time.Now().Add(2*service.GracePeriod), next, 5*time.Second)

	status, body = f.do(t, http.MethodPut, "/api/renew-expiry/abc", "", nil)
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, "Invalid user ID", body["message"])

	status, _ = f.do(t, http.MethodPut, "/api/renew-expiry/9999", "", nil)
	require.Equal(t, http.StatusNotFound, status)
}

func TestRenewExpiryWithoutPriorExpiry(t *testing.T) {
	db := databasetest.Open(t)
	store := database.NewStore(db, time.Second)
	f := newFixture(t, store, handlers.RouterOptions{}, nil)

	user := &models.User{Username: "legacy", Password: "x"}
	require.NoError(t, store.CreateUser(context.Background(), user))

	status, body := f.do(t, http.MethodPut, "/api/renew-expiry/"+strconv.Itoa(int(user.ID)), "", nil)
	require.Equal(t, http.StatusOK, status)

	next, err := time.Parse(time.RFC3339, body["newExpiryDate"].(string))
	require.NoError(t, err)
	require.WithinDuration(t, time.Now().Add(service.GracePeriod), next, 5*time.Second)
}

func TestProtectedRenewExpiry(t *testing.T) {
	store := database.NewStore(databasetest.Open(t), time.Second)
	f := newFixture(t, store, handlers.RouterOptions{ProtectRenewal: true}, nil)

	annID := f.register(t, "ann", "pw1")
	f.register(t, "bob", "pw2")
	bobToken := f.login(t, "bob", "pw2")
	annToken := f.login(t, "ann", "pw1")
	path := "/api/renew-expiry/" + strconv.Itoa(int(annID))

	status, _ := f.do(t, http.MethodPut, path, "", nil)
	require.Equal(t, http.StatusUnauthorized, status)

	status, _ = f.do(t, http.MethodPut, path, bobToken, nil)
	require.Equal(t, http.StatusForbidden, status)

	status, _ = f.do(t, http.MethodPut, path, annToken, nil)
	require.Equal(t, http.StatusOK, status)
}

func TestVideoWatch(t *testing.T) {
	f := newSQLiteFixture(t)
	id := f.register(t, "ann", "pw1")
	token := f.login(t, "ann", "pw1")
	payload := map[string]any{"video_title": "Intro", "video_url": "https://cdn/intro.m3u8", "watch_seconds": 0}

	status, _ := f.do(t, http.MethodPost, "/api/video-watch", "", payload)
	require.Equal(t, http.StatusUnauthorized, status)

	status, _ = f.do(t, http.MethodPost, "/api/video-watch", "not-a-token", payload)
	require.Equal(t, http.StatusForbidden, status)

	status, body := f.do(t, http.MethodPost, "/api/video-watch", token, payload)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, float64(id), body["user_id"])
	require.Equal(t, "Intro", body["video_title"])
	require.Equal(t, float64(0), body["watch_seconds"])
	require.NotEmpty(t, body["watched_at"])

	status, body = f.do(t, http.MethodGet, "/api/video-watch", token, nil)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, body["watches"], 1)
}

func TestVideoWatchExpiredToken(t *testing.T) {
	f := newSQLiteFixture(t)
	id := f.register(t, "ann", "pw1")

	stale := auth.NewTokenIssuer(testSecret, -time.Minute)
	token, _, err := stale.Issue(auth.Identity{ID: id, Username: "ann"})
	require.NoError(t, err)

	status, _ := f.do(t, http.MethodPost, "/api/video-watch", token, map[string]any{"video_title": "t", "video_url": "u", "watch_seconds": 1})
	require.Equal(t, http.StatusForbidden, status)
}

func TestVideoWatchValidation(t *testing.T) {
	f := newSQLiteFixture(t)
	f.register(t, "ann", "pw1")
	token := f.login(t, "ann", "pw1")

	for name, payload := range map[string]any{
		"missing title":    map[string]any{"video_url": "u", "watch_seconds": 1},
		"missing url":      map[string]any{"video_title": "t", "watch_seconds": 1},
		"missing seconds":  map[string]any{"video_title": "t", "video_url": "u"},
		"negative seconds": map[string]any{"video_title": "t", "video_url": "u", "watch_seconds": -5},
		"string seconds":   map[string]any{"video_title": "t", "video_url": "u", "watch_seconds": "10"},
	} {
		t.Run(name, func(t *testing.T) {
			status, body := f.do(t, http.MethodPost, "/api/video-watch", token, payload)
			require.Equal(t, http.StatusBadRequest, status)
			require.NotEmpty(t, body["message"])
		})
	}
}

func TestExportWatches(t *testing.T) {
	store := database.NewStore(databasetest.Open(t), time.Second)

	disabled := newFixture(t, store, handlers.RouterOptions{}, nil)
	disabled.register(t, "ann", "pw1")
	token := disabled.login(t, "ann", "pw1")

	status, _ := disabled.do(t, http.MethodPost, "/api/video-watch/export", token, nil)
	require.Equal(t, http.StatusServiceUnavailable, status)

	enabled := newFixture(t, store, handlers.RouterOptions{}, stubUploader{})
	status, body := enabled.do(t, http.MethodPost, "/api/video-watch/export", token, nil)
	require.Equal(t, http.StatusOK, status)
	require.Contains(t, body["location"], "watch-exports/")
}

// failingRepo simulates an unreachable store.
type failingRepo struct{}

var errDown = errors.New("Error 2003: Can't connect to MySQL server on 'db-secret-host:3306'")

func (failingRepo) FindUserByUsername(context.Context, string) (*models.User, error) {
	return nil, errDown
}
func (failingRepo) FindUserByID(context.Context, uint) (*models.User, error) { return nil, errDown }
func (failingRepo) CreateUser(context.Context, *models.User) error           { return errDown }
func (failingRepo) UpdateUserExpiry(context.Context, uint, time.Time) error  { return errDown }
func (failingRepo) CreateWatchLog(context.Context, *models.VideoWatchLog) error {
	return errDown
}
func (failingRepo) ListWatchLogs(context.Context, uint) ([]models.VideoWatchLog, error) {
	return nil, errDown
}
func (failingRepo) Ping(context.Context) error { return errDown }

func TestStoreFailuresAreGeneric(t *testing.T) {
	f := newFixture(t, failingRepo{}, handlers.RouterOptions{}, nil)
	token, _, err := f.issuer.Issue(auth.Identity{ID: 1, Username: "ann"})
	require.NoError(t, err)

	cases := []struct {
		method, path, token string
		body                any
		message             string
	}{
		{http.MethodPost, "/api/create-user", "", map[string]string{"username": "ann", "password": "pw1"}, "Failed to create user"},
		{http.MethodPost, "/api/login", "", map[string]string{"username": "ann", "password": "pw1"}, "Login failed"},
		{http.MethodPut, "/api/renew-expiry/1", "", nil, "Failed to renew expiry date"},
		{http.MethodPost, "/api/video-watch", token, map[string]any{"video_title": "t", "video_url": "u", "watch_seconds": 3}, "Failed to log video watch"},
	}
	for _, tc := range cases {
		status, body := f.do(t, tc.method, tc.path, tc.token, tc.body)
		require.Equal(t, http.StatusInternalServerError, status, tc.path)
		require.Equal(t, tc.message, body["message"])
		require.NotContains(t, body["message"], "db-secret-host")
	}
	require.Contains(t, f.logs.String(), "db-secret-host")
}

func TestHealth(t *testing.T) {
	status, body := newSQLiteFixture(t).do(t, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "ok", body["status"])

	status, _ = newFixture(t, failingRepo{}, handlers.RouterOptions{}, nil).do(t, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusServiceUnavailable, status)
}

func TestRequestIDHeader(t *testing.T) {
	f := newSQLiteFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "req-123")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	require.Equal(t, "req-123", w.Header().Get("X-Request-ID"))
	require.Contains(t, f.logs.String(), "req-123")
}
