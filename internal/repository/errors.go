package repository

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound запись не найдена
	ErrNotFound = errors.New("record not found")

	// ErrDuplicate - stripe_customer_id уже закреплен за другим пользователем
	ErrDuplicate = errors.New("duplicate customer mapping")

	// ErrInvalidData - пустой ключ (user id, profile id)
	ErrInvalidData = errors.New("invalid data")
)

// SQLSTATE unique_violation
const pgUniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
