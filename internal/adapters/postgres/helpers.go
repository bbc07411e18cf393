package postgres

import (
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/kevin07696/payment-engine/internal/domain"
)

// nullText creates a pgtype.Text with empty string handling
func nullText(s string) pgtype.Text {
	if s == "" {
		return pgtype.Text{Valid: false}
	}
	return pgtype.Text{String: s, Valid: true}
}

// storageError wraps a query failure as STORAGE_ERROR.
func storageError(op string, err error) error {
	return domain.WrapError(domain.ErrorCodeStorageError, op, err)
}
