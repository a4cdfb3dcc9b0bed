package handler

import (
	"strings"

	"fintrail/internal/ledger/models"
	dErrors "fintrail/pkg/domain-errors"
)

// CreateTransactionRequest is the body of POST /transactions.
type CreateTransactionRequest struct {
	TransactionType  string `json:"transaction_type"`
	Amount           string `json:"amount"`
	Currency         string `json:"currency,omitempty"`
	Description      string `json:"description,omitempty"`
	RecipientAccount string `json:"recipient_account,omitempty"`
	RecipientName    string `json:"recipient_name,omitempty"`

	parsedType   models.Type
	parsedAmount int64
}

func (r *CreateTransactionRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if len(r.Description) > 500 {
		return dErrors.New(dErrors.CodeValidation, "description must be at most 500 characters")
	}
	if len(r.RecipientAccount) > 50 || len(r.RecipientName) > 200 {
		return dErrors.New(dErrors.CodeValidation, "recipient fields are too long")
	}
	r.Currency = strings.TrimSpace(r.Currency)
	if r.Currency != "" && len(r.Currency) != 3 {
		return dErrors.New(dErrors.CodeValidation, "currency must be a three-letter code")
	}

	t, err := models.ParseType(r.TransactionType)
	if err != nil {
		return err
	}
	r.parsedType = t

	amount, err := models.ParseAmount(r.Amount)
	if err != nil {
		return err
	}
	r.parsedAmount = amount
	return nil
}
