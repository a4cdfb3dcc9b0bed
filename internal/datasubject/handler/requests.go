package handler

import (
	"strings"

	dErrors "fintrail/pkg/domain-errors"
)

// CorrectionRequest is the body of PUT /data-subject/correct.
type CorrectionRequest struct {
	FieldName string `json:"field_name"`
	NewValue  string `json:"new_value"`
	Reason    string `json:"reason,omitempty"`
}

func (r *CorrectionRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.FieldName = strings.ToLower(strings.TrimSpace(r.FieldName))
	r.NewValue = strings.TrimSpace(r.NewValue)
	r.Reason = strings.TrimSpace(r.Reason)
	if r.FieldName == "" {
		return dErrors.New(dErrors.CodeValidation, "field_name is required")
	}
	if r.NewValue == "" {
		return dErrors.New(dErrors.CodeValidation, "new_value is required")
	}
	if len(r.NewValue) > 100 {
		return dErrors.New(dErrors.CodeValidation, "new_value must be at most 100 characters")
	}
	return nil
}

// DeletionRequest is the optional body of DELETE /data-subject/delete.
type DeletionRequest struct {
	Reason string `json:"reason,omitempty"`
}

func (r *DeletionRequest) Validate() error {
	if r == nil {
		return nil
	}
	r.Reason = strings.TrimSpace(r.Reason)
	if len(r.Reason) > 500 {
		return dErrors.New(dErrors.CodeValidation, "reason must be at most 500 characters")
	}
	return nil
}
