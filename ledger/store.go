package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/hanapath/rewards/models"
)

// Store is the persistence capability the ledger needs. Implementations must
// enforce the (user, date) uniqueness constraint independently of the ledger.
type Store interface {
	// FindByUserAndDate returns nil, nil when no record exists.
	FindByUserAndDate(ctx context.Context, userID uint, day time.Time) (*models.Attendance, error)
	// Insert returns ErrDuplicate when the (user, date) key is taken.
	Insert(ctx context.Context, rec *models.Attendance) error
	// FindAllForUser returns every record of the user ordered by date.
	FindAllForUser(ctx context.Context, userID uint) ([]models.Attendance, error)
	// FindForUserBetween returns records with from <= date < to ordered by date.
	FindForUserBetween(ctx context.Context, userID uint, from, to time.Time) ([]models.Attendance, error)
}

// UserDirectory answers whether a user id refers to a known user.
type UserDirectory interface {
	UserExists(ctx context.Context, userID uint) (bool, error)
}

// GormStore implements Store and UserDirectory on top of gorm.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore creates a store over the attendances and users tables.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) FindByUserAndDate(ctx context.Context, userID uint, day time.Time) (*models.Attendance, error) {
	var rows []models.Attendance
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND attendance_date = ?", userID, datatypes.Date(day)).
		Limit(2).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	switch len(rows) {
	case 0:
		return nil, nil
	case 1:
		return &rows[0], nil
	default:
		return nil, fmt.Errorf("%w: %d rows for user %d on %s", ErrInvariantViolation, len(rows), userID, FormatDate(day))
	}
}

func (s *GormStore) Insert(ctx context.Context, rec *models.Attendance) error {
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		if isDuplicateKey(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

func (s *GormStore) FindAllForUser(ctx context.Context, userID uint) ([]models.Attendance, error) {
	var rows []models.Attendance
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("attendance_date ASC").
		Find(&rows).Error
	return rows, err
}

func (s *GormStore) FindForUserBetween(ctx context.Context, userID uint, from, to time.Time) ([]models.Attendance, error) {
	var rows []models.Attendance
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND attendance_date >= ? AND attendance_date < ?", userID, datatypes.Date(from), datatypes.Date(to)).
		Order("attendance_date ASC").
		Find(&rows).Error
	return rows, err
}

func (s *GormStore) UserExists(ctx context.Context, userID uint) (bool, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

// isDuplicateKey recognizes unique violations from MySQL, Postgres and SQLite.
// gorm translates them when TranslateError is on; the string checks cover sessions without it.
func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "Duplicate entry") ||
		strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "SQLSTATE 23505")
}
