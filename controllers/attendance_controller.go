package controllers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/hanapath/rewards/ledger"
	"github.com/hanapath/rewards/metrics"
	"github.com/hanapath/rewards/middleware"
	"github.com/hanapath/rewards/utils"
)

// AttendanceController exposes the attendance ledger over HTTP.
type AttendanceController struct {
	ledger   *ledger.Ledger
	cacheTTL time.Duration
}

// NewAttendanceController creates a controller. Stats and monthly reads are cached for cacheTTL.
func NewAttendanceController(l *ledger.Ledger, cacheTTL time.Duration) *AttendanceController {
	return &AttendanceController{ledger: l, cacheTTL: cacheTTL}
}

type checkInRequest struct {
	Date string `json:"date"`
}

type checkInResponse struct {
	ID              uint   `json:"id"`
	UserID          uint   `json:"user_id"`
	Date            string `json:"date"`
	PointsEarned    int    `json:"points_earned"`
	BonusMultiplier int    `json:"bonus_multiplier"`
	ConsecutiveDays int    `json:"consecutive_days"`
	Message         string `json:"message"`
}

// CheckIn records today's attendance, or the date given in the body.
func (a *AttendanceController) CheckIn(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	// the body is optional; an empty one means today
	var req checkInRequest
	if ctx.Request.ContentLength != 0 {
		if err := ctx.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			metrics.CheckIns.WithLabelValues(metrics.OutcomeRejected).Inc()
			utils.Error(ctx, http.StatusBadRequest, 40030, "invalid request body")
			return
		}
	}

	var date *time.Time
	if req.Date != "" {
		d, err := ledger.ParseDate(req.Date)
		if err != nil {
			metrics.CheckIns.WithLabelValues(metrics.OutcomeRejected).Inc()
			utils.Error(ctx, http.StatusBadRequest, 40031, "date must be YYYY-MM-DD")
			return
		}
		date = &d
	}

	res, err := a.ledger.CheckIn(ctx.Request.Context(), userID, date)
	if err != nil {
		metrics.CheckIns.WithLabelValues(checkInOutcome(err)).Inc()
		respondLedgerError(ctx, err)
		return
	}
	metrics.CheckIns.WithLabelValues(metrics.OutcomeCreated).Inc()
	// detached: the record is committed even when the client has gone away
	a.invalidate(context.WithoutCancel(ctx.Request.Context()), userID)

	multiplier := 1
	if res.Record.BonusMultiplier != nil {
		multiplier = *res.Record.BonusMultiplier
	}
	utils.Success(ctx, checkInResponse{
		ID:              res.Record.ID,
		UserID:          res.Record.UserID,
		Date:            ledger.FormatDate(ledger.RecordDay(res.Record.AttendanceDate)),
		PointsEarned:    res.Record.PointsEarned,
		BonusMultiplier: multiplier,
		ConsecutiveDays: res.Record.StreakDays,
		Message:         res.Message,
	})
}

// Monthly returns the attendance calendar for ?year=&month=, defaulting to the current month.
func (a *AttendanceController) Monthly(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	today := a.ledger.Today()
	year, err := intQuery(ctx, "year", today.Year())
	if err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40032, "invalid year")
		return
	}
	month, err := intQuery(ctx, "month", int(today.Month()))
	if err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40033, "invalid month")
		return
	}

	key, cacheable := a.cacheKey(ctx, userID, fmt.Sprintf("monthly:%04d-%02d:%s", year, month, ledger.FormatDate(today)))
	if cacheable && a.serveCached(ctx, key) {
		return
	}

	summary, err := a.ledger.GetMonthlySummary(ctx.Request.Context(), userID, year, month)
	if err != nil {
		respondLedgerError(ctx, err)
		return
	}
	if cacheable {
		utils.CacheSetJSON(ctx.Request.Context(), key, utils.Envelope(summary), a.cacheTTL)
	}
	utils.Success(ctx, summary)
}

// Stats returns lifetime and current month totals.
func (a *AttendanceController) Stats(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	key, cacheable := a.cacheKey(ctx, userID, "stats:"+ledger.FormatDate(a.ledger.Today()))
	if cacheable && a.serveCached(ctx, key) {
		return
	}

	stats, err := a.ledger.GetStats(ctx.Request.Context(), userID)
	if err != nil {
		respondLedgerError(ctx, err)
		return
	}
	if cacheable {
		utils.CacheSetJSON(ctx.Request.Context(), key, utils.Envelope(stats), a.cacheTTL)
	}
	utils.Success(ctx, stats)
}

// Today reports whether the caller has already checked in today.
func (a *AttendanceController) Today(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	attended, err := a.ledger.TodayAttended(ctx.Request.Context(), userID)
	if err != nil {
		respondLedgerError(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{"today_attended": attended})
}

// cacheKey builds a read cache key under the user's current cache version. A read that
// raced a check-in stores its result under the old version, where nobody looks any more.
func (a *AttendanceController) cacheKey(ctx *gin.Context, userID uint, suffix string) (string, bool) {
	if a.cacheTTL <= 0 {
		return "", false
	}
	version, ok := utils.CacheVersion(ctx.Request.Context(), cacheVersionKey(userID))
	if !ok {
		return "", false
	}
	return fmt.Sprintf("%sv%d:%s", cachePrefix(userID), version, suffix), true
}

// invalidate retires every cached read of the user.
func (a *AttendanceController) invalidate(ctx context.Context, userID uint) {
	if a.cacheTTL <= 0 {
		return
	}
	if err := utils.CacheBumpVersion(ctx, cacheVersionKey(userID)); err != nil {
		utils.Logger.Warn("attendance cache version bump failed", zap.Uint("user_id", userID), zap.Error(err))
	}
	if err := utils.InvalidateByPrefix(ctx, cachePrefix(userID)); err != nil {
		utils.Logger.Warn("attendance cache invalidation failed", zap.Uint("user_id", userID), zap.Error(err))
	}
}

func (a *AttendanceController) serveCached(ctx *gin.Context, key string) bool {
	b, ok := utils.CacheGetBytes(ctx.Request.Context(), key)
	if !ok {
		return false
	}
	ctx.Data(http.StatusOK, "application/json; charset=utf-8", b)
	return true
}

// respondLedgerError maps the ledger error taxonomy onto status codes.
func respondLedgerError(ctx *gin.Context, err error) {
	var lerr *ledger.Error
	errors.As(err, &lerr)

	switch {
	case errors.Is(err, ledger.ErrAlreadyCheckedIn):
		data := gin.H{}
		if lerr != nil {
			data["id"] = lerr.RecordID
			data["date"] = lerr.Date
		}
		utils.Respond(ctx, http.StatusConflict, 40930, "already checked in", data)
	case errors.Is(err, ledger.ErrUserNotFound):
		utils.Error(ctx, http.StatusNotFound, 40410, "user not found")
	case errors.Is(err, ledger.ErrInvalidDate):
		utils.Error(ctx, http.StatusBadRequest, 40034, "invalid attendance date")
	case errors.Is(err, ledger.ErrTimeout):
		utils.Error(ctx, http.StatusGatewayTimeout, 50430, "attendance storage timeout")
	case errors.Is(err, ledger.ErrInvariantViolation):
		utils.Logger.Error("attendance request hit invariant violation",
			zap.String("request_id", ctx.GetString(utils.ContextRequestIDKey)),
			zap.Error(err))
		utils.Error(ctx, http.StatusInternalServerError, 50031, "attendance data inconsistent")
	default:
		utils.Logger.Warn("attendance storage unavailable",
			zap.String("request_id", ctx.GetString(utils.ContextRequestIDKey)),
			zap.Error(err))
		utils.Error(ctx, http.StatusServiceUnavailable, 50330, "attendance storage unavailable")
	}
}

func checkInOutcome(err error) string {
	switch {
	case errors.Is(err, ledger.ErrAlreadyCheckedIn):
		return metrics.OutcomeAlreadyCheckedIn
	case errors.Is(err, ledger.ErrUserNotFound), errors.Is(err, ledger.ErrInvalidDate):
		return metrics.OutcomeRejected
	default:
		return metrics.OutcomeFailed
	}
}

func cachePrefix(userID uint) string {
	return fmt.Sprintf("cache:attendance:%d:", userID)
}

// cacheVersionKey lives outside cachePrefix so prefix invalidation never resets it.
func cacheVersionKey(userID uint) string {
	return fmt.Sprintf("cache:attendance-version:%d", userID)
}

func intQuery(ctx *gin.Context, name string, def int) (int, error) {
	raw := ctx.Query(name)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

func getUserID(ctx *gin.Context) (uint, bool) {
	return middleware.UserID(ctx)
}
