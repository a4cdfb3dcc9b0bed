package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	id "fintrail/pkg/domain"
	dErrors "fintrail/pkg/domain-errors"
)

// Type is the kind of money movement.
type Type string

const (
	TypeDeposit    Type = "deposit"
	TypeWithdrawal Type = "withdrawal"
	TypeTransfer   Type = "transfer"
	TypePayment    Type = "payment"
	TypeRefund     Type = "refund"
)

var validTypes = map[Type]bool{
	TypeDeposit:    true,
	TypeWithdrawal: true,
	TypeTransfer:   true,
	TypePayment:    true,
	TypeRefund:     true,
}

func ParseType(s string) (Type, error) {
	t := Type(strings.ToLower(strings.TrimSpace(s)))
	if !validTypes[t] {
		return "", dErrors.New(dErrors.CodeValidation, "invalid transaction_type: "+s)
	}
	return t, nil
}

// Status is the processing state of a transaction.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

const DefaultCurrency = "ZAR"

// Transaction is a financial record owned by one user.
type Transaction struct {
	ID               id.TransactionID `json:"id"`
	UserID           id.UserID        `json:"user_id"`
	Reference        string           `json:"transaction_reference"`
	Type             Type             `json:"transaction_type"`
	AmountMinor      int64            `json:"-"`
	Currency         string           `json:"currency"`
	Status           Status           `json:"status"`
	Description      string           `json:"description,omitempty"`
	RecipientAccount string           `json:"recipient_account,omitempty"`
	RecipientName    string           `json:"recipient_name,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	CompletedAt      *time.Time       `json:"completed_at,omitempty"`
}

// Amount renders the minor-unit amount as a two-decimal string.
func (t Transaction) Amount() string {
	return FormatAmount(t.AmountMinor)
}

// View is the JSON shape of a transaction.
type View struct {
	Transaction
	Amount string `json:"amount"`
}

func (t Transaction) ToView() View {
	return View{Transaction: t, Amount: t.Amount()}
}

// ParseAmount converts a positive decimal string with at most two fraction
// digits into minor units.
func ParseAmount(s string) (int64, error) {
	s = strings.TrimSpace(s)
	whole, frac, hasFrac := strings.Cut(s, ".")
	if whole == "" || (hasFrac && (len(frac) == 0 || len(frac) > 2)) {
		return 0, dErrors.New(dErrors.CodeValidation, "amount must be a decimal with at most two fraction digits")
	}
	for len(frac) < 2 {
		frac += "0"
	}
	units, err := strconv.ParseInt(whole, 10, 64)
	if err != nil || units < 0 || strings.HasPrefix(whole, "+") {
		return 0, dErrors.New(dErrors.CodeValidation, "amount must be a positive decimal")
	}
	cents, err := strconv.ParseInt(frac, 10, 64)
	if err != nil || strings.HasPrefix(frac, "+") || strings.HasPrefix(frac, "-") {
		return 0, dErrors.New(dErrors.CodeValidation, "amount must be a positive decimal")
	}
	if units > (1<<62)/100 {
		return 0, dErrors.New(dErrors.CodeValidation, "amount is too large")
	}
	total := units*100 + cents
	if total <= 0 {
		return 0, dErrors.New(dErrors.CodeValidation, "amount must be greater than zero")
	}
	return total, nil
}

func FormatAmount(minor int64) string {
	return fmt.Sprintf("%d.%02d", minor/100, minor%100)
}
