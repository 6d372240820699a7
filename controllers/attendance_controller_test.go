package controllers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/hanapath/rewards/config"
	"github.com/hanapath/rewards/controllers"
	"github.com/hanapath/rewards/ledger"
	"github.com/hanapath/rewards/middleware"
	"github.com/hanapath/rewards/models"
	"github.com/hanapath/rewards/rewards"
	"github.com/hanapath/rewards/utils"
)

const testSecret = "controller-secret"

var now = time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// harnessOptions swaps parts of the wiring; zero values use the production pieces.
type harnessOptions struct {
	wrapStore func(ledger.Store) ledger.Store
	hook      ledger.Hook
}

type harness struct {
	t      *testing.T
	db     *gorm.DB
	router *gin.Engine
	redis  *miniredis.Miniredis
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWith(t, harnessOptions{})
}

func newHarnessWith(t *testing.T, opts harnessOptions) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := config.Open(sqlite.Open(":memory:"), "silent")
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, config.Migrate(db, &models.User{}, &models.Attendance{}, &models.ExperienceEvent{}))

	mr := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	utils.SetRedis(rc)
	t.Cleanup(func() {
		utils.SetRedis(nil)
		_ = rc.Close()
	})

	gormStore := ledger.NewGormStore(db)
	var store ledger.Store = gormStore
	if opts.wrapStore != nil {
		store = opts.wrapStore(gormStore)
	}
	var hook ledger.Hook = rewards.NewService(db)
	if opts.hook != nil {
		hook = opts.hook
	}
	l := ledger.New(store, gormStore, ledger.Options{
		Location: time.UTC,
		Now:      func() time.Time { return now },
		Hook:     hook,
	})
	ctrl := controllers.NewAttendanceController(l, time.Minute)

	r := gin.New()
	g := r.Group("/api/v1/attendance", middleware.AuthRequired(testSecret))
	g.POST("/check-in", ctrl.CheckIn)
	g.GET("/monthly", ctrl.Monthly)
	g.GET("/stats", ctrl.Stats)
	g.GET("/today", ctrl.Today)

	return &harness{t: t, db: db, router: r, redis: mr}
}

func (h *harness) user(name string) models.User {
	h.t.Helper()
	u := models.User{Username: name}
	require.NoError(h.t, h.db.Create(&u).Error)
	return u
}

func (h *harness) do(method, path string, userID uint, body string) (*httptest.ResponseRecorder, envelope) {
	h.t.Helper()
	return h.doCtx(context.Background(), method, path, userID, body)
}

func (h *harness) doCtx(ctx context.Context, method, path string, userID uint, body string) (*httptest.ResponseRecorder, envelope) {
	h.t.Helper()
	token, err := utils.GenerateToken(testSecret, userID, "tester", time.Hour)
	require.NoError(h.t, err)

	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	req = req.WithContext(ctx)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)

	var env envelope
	require.NoError(h.t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w, env
}

func TestCheckInFlow(t *testing.T) {
	h := newHarness(t)
	alice := h.user("alice")

	w, env := h.do(http.MethodPost, "/api/v1/attendance/check-in", alice.ID, `{"date":"2024-03-04"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w, env = h.do(http.MethodPost, "/api/v1/attendance/check-in", alice.ID, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var res map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, "2024-03-05", res["date"])
	assert.EqualValues(t, 50, res["points_earned"])
	assert.EqualValues(t, 1, res["bonus_multiplier"])
	assert.EqualValues(t, 2, res["consecutive_days"])
	assert.NotEmpty(t, res["message"])
	firstID := res["id"]

	w, env = h.do(http.MethodPost, "/api/v1/attendance/check-in", alice.ID, "")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, 40930, env.Code)
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, firstID, res["id"])
	assert.Equal(t, "2024-03-05", res["date"])

	var wallet models.User
	require.NoError(t, h.db.First(&wallet, alice.ID).Error)
	assert.Equal(t, 100, wallet.Points)
	assert.Equal(t, 2*rewards.AttendanceExp, wallet.TotalExp)
	assert.Equal(t, 2, wallet.ConsecutiveDays)
}

func TestCheckInRejections(t *testing.T) {
	h := newHarness(t)
	alice := h.user("alice")

	w, env := h.do(http.MethodPost, "/api/v1/attendance/check-in", alice.ID, `{"date":"2024-03-06"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 40034, env.Code)

	w, env = h.do(http.MethodPost, "/api/v1/attendance/check-in", alice.ID, `{"date":"05/03/2024"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 40031, env.Code)

	w, env = h.do(http.MethodPost, "/api/v1/attendance/check-in", alice.ID, `{"date":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 40030, env.Code)

	w, env = h.do(http.MethodPost, "/api/v1/attendance/check-in", 999, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, 40410, env.Code)
}

func TestStatsCacheInvalidatedByCheckIn(t *testing.T) {
	h := newHarness(t)
	alice := h.user("alice")

	w, env := h.do(http.MethodGet, "/api/v1/attendance/stats", alice.ID, "")
	require.Equal(t, http.StatusOK, w.Code)
	var stats ledger.Stats
	require.NoError(t, json.Unmarshal(env.Data, &stats))
	assert.Zero(t, stats.TotalAttendanceDays)
	assert.True(t, h.redis.Exists("cache:attendance:1:v0:stats:2024-03-05"))

	w, _ = h.do(http.MethodPost, "/api/v1/attendance/check-in", alice.ID, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, h.redis.Exists("cache:attendance:1:v0:stats:2024-03-05"))
	version, err := h.redis.Get("cache:attendance-version:1")
	require.NoError(t, err)
	assert.Equal(t, "1", version)

	w, env = h.do(http.MethodGet, "/api/v1/attendance/stats", alice.ID, "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(env.Data, &stats))
	assert.Equal(t, ledger.Stats{
		TotalAttendanceDays: 1,
		CurrentMonthPoints:  50,
		ConsecutiveDays:     1,
		TotalPoints:         50,
	}, stats)

	// served from cache
	assert.True(t, h.redis.Exists("cache:attendance:1:v1:stats:2024-03-05"))
	w, env = h.do(http.MethodGet, "/api/v1/attendance/stats", alice.ID, "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(env.Data, &stats))
	assert.Equal(t, 1, stats.TotalAttendanceDays)
}

// cancelHook cancels the request context once the record has been stored,
// like a client that disconnects right after the insert commits.
type cancelHook struct {
	cancel context.CancelFunc
}

func (h cancelHook) AfterCheckIn(context.Context, models.Attendance) error {
	h.cancel()
	return nil
}

func TestCheckInInvalidatesCacheAfterClientDisconnect(t *testing.T) {
	reqCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := newHarnessWith(t, harnessOptions{hook: cancelHook{cancel: cancel}})
	alice := h.user("alice")

	w, _ := h.do(http.MethodGet, "/api/v1/attendance/stats", alice.ID, "")
	require.Equal(t, http.StatusOK, w.Code)
	w, _ = h.do(http.MethodGet, "/api/v1/attendance/monthly", alice.ID, "")
	require.Equal(t, http.StatusOK, w.Code)

	w, _ = h.doCtx(reqCtx, http.MethodPost, "/api/v1/attendance/check-in", alice.ID, "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Error(t, reqCtx.Err())

	w, env := h.do(http.MethodGet, "/api/v1/attendance/stats", alice.ID, "")
	require.Equal(t, http.StatusOK, w.Code)
	var stats ledger.Stats
	require.NoError(t, json.Unmarshal(env.Data, &stats))
	assert.Equal(t, 1, stats.TotalAttendanceDays)
	assert.Equal(t, 50, stats.TotalPoints)

	w, env = h.do(http.MethodGet, "/api/v1/attendance/monthly", alice.ID, "")
	require.Equal(t, http.StatusOK, w.Code)
	var summary ledger.MonthlySummary
	require.NoError(t, json.Unmarshal(env.Data, &summary))
	assert.Equal(t, []int{5}, summary.AttendedDays)
	assert.True(t, summary.TodayAttended)
}

// slowReadStore runs afterRead once, right after a history read returned,
// so a check-in can commit while a stats request still holds the old rows.
type slowReadStore struct {
	ledger.Store
	afterRead func()
}

func (s *slowReadStore) FindAllForUser(ctx context.Context, userID uint) ([]models.Attendance, error) {
	recs, err := s.Store.FindAllForUser(ctx, userID)
	if fn := s.afterRead; fn != nil {
		s.afterRead = nil
		fn()
	}
	return recs, err
}

func TestStaleReadDoesNotRepopulateCache(t *testing.T) {
	slow := &slowReadStore{}
	h := newHarnessWith(t, harnessOptions{wrapStore: func(s ledger.Store) ledger.Store {
		slow.Store = s
		return slow
	}})
	alice := h.user("alice")

	slow.afterRead = func() {
		w, _ := h.do(http.MethodPost, "/api/v1/attendance/check-in", alice.ID, "")
		require.Equal(t, http.StatusOK, w.Code)
	}
	w, env := h.do(http.MethodGet, "/api/v1/attendance/stats", alice.ID, "")
	require.Equal(t, http.StatusOK, w.Code)
	var stats ledger.Stats
	require.NoError(t, json.Unmarshal(env.Data, &stats))
	// this request read the history before the check-in committed
	assert.Zero(t, stats.TotalAttendanceDays)

	w, env = h.do(http.MethodGet, "/api/v1/attendance/stats", alice.ID, "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(env.Data, &stats))
	assert.Equal(t, 1, stats.TotalAttendanceDays)
	assert.Equal(t, 50, stats.TotalPoints)
}

func TestCacheInvalidationSurvivesRedisOutage(t *testing.T) {
	h := newHarness(t)
	alice := h.user("alice")

	h.redis.SetError("LOADING redis is loading")
	w, env := h.do(http.MethodPost, "/api/v1/attendance/check-in", alice.ID, "")
	require.Equal(t, http.StatusOK, w.Code)

	w, env = h.do(http.MethodGet, "/api/v1/attendance/stats", alice.ID, "")
	require.Equal(t, http.StatusOK, w.Code)
	var stats ledger.Stats
	require.NoError(t, json.Unmarshal(env.Data, &stats))
	assert.Equal(t, 1, stats.TotalAttendanceDays)

	h.redis.SetError("")
	assert.Empty(t, h.redis.Keys())
}

func TestMonthlyAndToday(t *testing.T) {
	h := newHarness(t)
	alice := h.user("alice")

	w, env := h.do(http.MethodGet, "/api/v1/attendance/today", alice.ID, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"today_attended":false}`, string(env.Data))

	for _, d := range []string{"2024-02-29", "2024-03-01", "2024-03-05"} {
		w, _ = h.do(http.MethodPost, "/api/v1/attendance/check-in", alice.ID, `{"date":"`+d+`"}`)
		require.Equal(t, http.StatusOK, w.Code)
	}

	w, env = h.do(http.MethodGet, "/api/v1/attendance/monthly", alice.ID, "")
	require.Equal(t, http.StatusOK, w.Code)
	var march ledger.MonthlySummary
	require.NoError(t, json.Unmarshal(env.Data, &march))
	assert.Equal(t, ledger.MonthlySummary{
		Year:            2024,
		Month:           3,
		AttendedDays:    []int{1, 5},
		TotalPoints:     100,
		ConsecutiveDays: 1,
		TodayAttended:   true,
	}, march)

	w, env = h.do(http.MethodGet, "/api/v1/attendance/monthly?year=2024&month=2", alice.ID, "")
	require.Equal(t, http.StatusOK, w.Code)
	var feb ledger.MonthlySummary
	require.NoError(t, json.Unmarshal(env.Data, &feb))
	assert.Equal(t, []int{29}, feb.AttendedDays)

	w, env = h.do(http.MethodGet, "/api/v1/attendance/monthly?month=13", alice.ID, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 40034, env.Code)

	w, env = h.do(http.MethodGet, "/api/v1/attendance/monthly?year=abc", alice.ID, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 40032, env.Code)

	w, env = h.do(http.MethodGet, "/api/v1/attendance/today", alice.ID, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"today_attended":true}`, string(env.Data))
}

func TestStorageUnavailable(t *testing.T) {
	h := newHarness(t)
	alice := h.user("alice")
	sqlDB, err := h.db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	w, env := h.do(http.MethodGet, "/api/v1/attendance/today", alice.ID, "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, 50330, env.Code)
}
