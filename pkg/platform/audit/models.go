// Package audit is the audit-record pipeline: the immutable record model, the
// store contract, the sink that stamps and persists records, and the emitter
// used by business code for domain-specific entries.
//
// Audit-path failures never leave this package as errors. The sink returns a
// WriteResult whose FailedButIgnored outcome is reported only to the
// operational logger and metrics.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	id "fintrail/pkg/domain"
	dErrors "fintrail/pkg/domain-errors"
)

// Action is the closed set of audited actions.
type Action string

const (
	ActionCreate           Action = "CREATE"
	ActionRead             Action = "READ"
	ActionUpdate           Action = "UPDATE"
	ActionDelete           Action = "DELETE"
	ActionLogin            Action = "LOGIN"
	ActionLogout           Action = "LOGOUT"
	ActionAccessDenied     Action = "ACCESS_DENIED"
	ActionDataExport       Action = "DATA_EXPORT"
	ActionConsentGiven     Action = "CONSENT_GIVEN"
	ActionConsentWithdrawn Action = "CONSENT_WITHDRAWN"
)

var validActions = map[Action]bool{
	ActionCreate:           true,
	ActionRead:             true,
	ActionUpdate:           true,
	ActionDelete:           true,
	ActionLogin:            true,
	ActionLogout:           true,
	ActionAccessDenied:     true,
	ActionDataExport:       true,
	ActionConsentGiven:     true,
	ActionConsentWithdrawn: true,
}

// ParseAction accepts the action name in any case.
func ParseAction(s string) (Action, error) {
	a := Action(strings.ToUpper(strings.TrimSpace(s)))
	if !a.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid audit action")
	}
	return a, nil
}

func (a Action) IsValid() bool { return validActions[a] }

func (a Action) String() string { return string(a) }

// Well-known resource types.
const (
	ResourceUser        = "user"
	ResourceTransaction = "transaction"
	ResourceConsent     = "consent"
	ResourceDataSubject = "data_subject"
	ResourceCompliance  = "compliance"
	ResourceUnknown     = "unknown"
)

// RecordID is assigned by the store on append.
type RecordID int64

// Record is one audit entry. Once persisted it never changes, apart from
// ActorEmail being replaced by an anonymized placeholder and ActorUserID
// being cleared when the user is erased.
type Record struct {
	ID           RecordID       `json:"id"`
	ActorUserID  id.UserID      `json:"user_id,omitempty"`
	ActorEmail   string         `json:"user_email,omitempty"`
	Action       Action         `json:"action"`
	ResourceType string         `json:"resource_type"`
	ResourceID   *int64         `json:"resource_id,omitempty"`
	Description  string         `json:"description"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	IPAddress    string         `json:"ip_address,omitempty"`
	UserAgent    string         `json:"user_agent,omitempty"`
	Timestamp    time.Time      `json:"timestamp"`

	CloudProvider    string `json:"cloud_provider"`
	Region           string `json:"region"`
	AvailabilityZone string `json:"availability_zone,omitempty"`
}

// Filter narrows List and Count. Zero fields do not filter.
type Filter struct {
	UserID id.UserID
	Action Action
	From   time.Time
	To     time.Time
}

// Page is offset pagination.
type Page struct {
	Offset int
	Limit  int
}

const (
	DefaultPageLimit = 100
	MaxPageLimit     = 1000
)

// Normalize clamps the page into the supported range.
func (p Page) Normalize() Page {
	if p.Offset < 0 {
		p.Offset = 0
	}
	if p.Limit <= 0 {
		p.Limit = DefaultPageLimit
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	return p
}

// Residency tags describe where records are stored.
type Residency struct {
	CloudProvider    string
	Region           string
	AvailabilityZone string
}

// AnonymizedDomain marks scrubbed email snapshots.
const AnonymizedDomain = "@anonymized.local"

// IsAnonymized reports whether an email snapshot has already been scrubbed.
func IsAnonymized(email string) bool {
	return strings.HasSuffix(email, AnonymizedDomain)
}

// AnonymizedEmail derives the deterministic placeholder for an actor. The
// same actor always maps to the same placeholder, and the placeholder does not
// reveal the email it replaces.
func AnonymizedEmail(actor id.UserID) string {
	if actor.IsNil() {
		return "anonymous" + AnonymizedDomain
	}
	sum := sha256.Sum256([]byte("fintrail-audit-actor:" + actor.String()))
	return "user_" + hex.EncodeToString(sum[:8]) + AnonymizedDomain
}
