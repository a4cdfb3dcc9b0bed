package domain

import (
	"strconv"

	dErrors "fintrail/pkg/domain-errors"
)

// UserID identifies a user row. Zero means "no user" (unauthenticated or
// detached after deletion).
type UserID int64

// TransactionID identifies a financial transaction row.
type TransactionID int64

// ConsentID identifies a consent row.
type ConsentID int64

// IsNil reports whether the id is unset.
func (id UserID) IsNil() bool { return id <= 0 }

// Int64 returns the raw numeric identifier.
func (id UserID) Int64() int64 { return int64(id) }

func (id UserID) String() string { return strconv.FormatInt(int64(id), 10) }

// Ptr returns nil for an unset id, which maps to SQL NULL.
func (id UserID) Ptr() *int64 {
	if id.IsNil() {
		return nil
	}
	v := int64(id)
	return &v
}

func (id TransactionID) IsNil() bool { return id <= 0 }

func (id TransactionID) String() string { return strconv.FormatInt(int64(id), 10) }

// ParseUserID parses a positive decimal user identifier from external input.
func ParseUserID(s string) (UserID, error) {
	v, err := parsePositive(s, "user id")
	return UserID(v), err
}

// ParseTransactionID parses a positive decimal transaction identifier.
func ParseTransactionID(s string) (TransactionID, error) {
	v, err := parsePositive(s, "transaction id")
	return TransactionID(v), err
}

func parsePositive(s, what string) (int64, error) {
	if s == "" {
		return 0, dErrors.New(dErrors.CodeInvalidInput, what+" cannot be empty")
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil || v <= 0 {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "invalid "+what)
	}
	return v, nil
}
