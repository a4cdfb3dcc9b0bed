package domain

import dErrors "fintrail/pkg/domain-errors"

// ConsentPurpose identifies why personal data is processed.
// Invariant: the value must be one of the supported purposes.
//
// Usage: construct via ParseConsentPurpose at trust boundaries; direct casting
// bypasses validation.
type ConsentPurpose string

const (
	ConsentPurposeMarketing         ConsentPurpose = "marketing"
	ConsentPurposeAnalytics         ConsentPurpose = "analytics"
	ConsentPurposeThirdPartySharing ConsentPurpose = "third_party_sharing"
	ConsentPurposeDataProcessing    ConsentPurpose = "data_processing"
)

var validConsentPurposes = map[ConsentPurpose]bool{
	ConsentPurposeMarketing:         true,
	ConsentPurposeAnalytics:         true,
	ConsentPurposeThirdPartySharing: true,
	ConsentPurposeDataProcessing:    true,
}

// ParseConsentPurpose constructs a ConsentPurpose from external input.
//
// Errors: returns CodeInvalidInput when the value is empty or unsupported.
func ParseConsentPurpose(s string) (ConsentPurpose, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "purpose cannot be empty")
	}
	p := ConsentPurpose(s)
	if !p.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid purpose")
	}
	return p, nil
}

func (p ConsentPurpose) IsValid() bool {
	return validConsentPurposes[p]
}

func (p ConsentPurpose) String() string {
	return string(p)
}
