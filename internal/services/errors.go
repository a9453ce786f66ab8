package services

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"tunecrate/internal/utils"
)

// PostgreSQL SQLSTATE codes
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

type constraintViolation int

const (
	violationNone constraintViolation = iota
	violationUnique
	violationForeignKey
)

// classifyDBError detects constraint violations. GORM translates them when
// TranslateError is on; the driver-level checks cover connections opened
// without it.
func classifyDBError(err error) constraintViolation {
	switch {
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return violationUnique
	case errors.Is(err, gorm.ErrForeignKeyViolated):
		return violationForeignKey
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return violationUnique
		case pgForeignKeyViolation:
			return violationForeignKey
		}
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, "UNIQUE constraint failed"):
		return violationUnique
	case strings.Contains(msg, "FOREIGN KEY constraint failed"):
		return violationForeignKey
	}
	return violationNone
}

// translateDBError maps a database error onto the error taxonomy. The kinds
// for unique and foreign key violations depend on the operation. Errors that
// are already classified pass through untouched.
func translateDBError(err error, action string, onUnique, onForeignKey utils.ErrorKind) error {
	if err == nil {
		return nil
	}

	var appErr *utils.AppError
	if errors.As(err, &appErr) {
		return err
	}

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return utils.NewNotFoundError(action+": record not found", err)
	}

	switch classifyDBError(err) {
	case violationUnique:
		return utils.NewError(onUnique, action+": unique constraint violated", err)
	case violationForeignKey:
		return utils.NewError(onForeignKey, action+": referenced row constraint violated", err)
	}

	return utils.NewGenericError("failed to "+action, err)
}

// asAppError makes sure err belongs to the taxonomy
func asAppError(err error, action string) error {
	if err == nil {
		return nil
	}
	var appErr *utils.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return utils.NewGenericError("failed to "+action, err)
}
