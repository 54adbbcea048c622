package errors

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// ErrorInfo is a code and message safe to show to a client.
type ErrorInfo struct {
	Code    string
	Message string
}

// Postgres SQLSTATE codes the parser recognizes.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgNotNullViolation    = "23502"
	pgCheckViolation      = "23514"
)

// IsUniqueViolation reports whether err is a unique constraint violation
// from Postgres or SQLite.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}

// ParseError maps database errors to client-safe codes without leaking
// table or constraint names.
func ParseError(err error, context string) ErrorInfo {
	if err == nil {
		return ErrorInfo{Code: InternalServerError, Message: "Something went wrong"}
	}

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrorInfo{Code: ResourceNotFound, Message: notFoundMessage(context)}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return parseDuplicateKeyError(pgErr.ConstraintName + " " + pgErr.Message)
		case pgForeignKeyViolation:
			return ErrorInfo{Code: ResourceConflict, Message: "Referenced data is missing or still in use"}
		case pgNotNullViolation:
			return ErrorInfo{Code: ValidationRequired, Message: "A required field is missing"}
		case pgCheckViolation:
			return parseCheckConstraintError(pgErr.ConstraintName)
		}
	}

	if IsUniqueViolation(err) {
		return parseDuplicateKeyError(err.Error())
	}

	errLower := strings.ToLower(err.Error())
	if strings.Contains(errLower, "connection refused") ||
		strings.Contains(errLower, "no such host") ||
		strings.Contains(errLower, "timeout") {
		return ErrorInfo{
			Code:    InternalExternalAPI,
			Message: "Could not reach an external service. Please try again shortly",
		}
	}

	return ErrorInfo{Code: InternalServerError, Message: defaultErrorMessage(context)}
}

func parseDuplicateKeyError(detail string) ErrorInfo {
	d := strings.ToLower(detail)
	switch {
	case strings.Contains(d, "reviews"):
		return ErrorInfo{Code: ReviewAlreadyExists, Message: "This tab has already been reviewed"}
	case strings.Contains(d, "ticket_links"):
		return ErrorInfo{Code: ResourceConflict, Message: "This ticket link was modified concurrently"}
	case strings.Contains(d, "email"):
		return ErrorInfo{Code: ResourceAlreadyExists, Message: "Email is already in use"}
	}
	return ErrorInfo{Code: ResourceAlreadyExists, Message: "Already exists"}
}

func parseCheckConstraintError(constraint string) ErrorInfo {
	if strings.Contains(strings.ToLower(constraint), "rating") {
		return ErrorInfo{Code: ReviewInvalidRating, Message: "Rating must be between 1 and 5"}
	}
	return ErrorInfo{Code: ValidationInvalidInput, Message: "Invalid input"}
}

func notFoundMessage(context string) string {
	c := strings.ToLower(context)
	switch {
	case strings.Contains(c, "restaurant"):
		return "Restaurant not found"
	case strings.Contains(c, "member"):
		return "Member not found"
	case strings.Contains(c, "link"), strings.Contains(c, "tab"):
		return "Tab not found"
	case strings.Contains(c, "review"):
		return "Review not found"
	}
	return "Not found"
}

func defaultErrorMessage(context string) string {
	c := strings.ToLower(context)
	switch {
	case strings.Contains(c, "create"):
		return "Could not create. Please try again shortly"
	case strings.Contains(c, "update"):
		return "Could not update. Please try again shortly"
	case strings.Contains(c, "delete"):
		return "Could not delete. Please try again shortly"
	}
	return "Something went wrong. Please try again shortly"
}

// ParseAndRespond parses err and writes it with statusCode.
func ParseAndRespond(c interface{ JSON(int, interface{}) }, statusCode int, err error, context string) {
	info := ParseError(err, context)
	c.JSON(statusCode, ErrorResponse{Error: info.Code, Message: info.Message})
}
