package models

import (
	"time"

	id "fintrail/pkg/domain"
)

// Category groups inventory entries by the kind of personal information.
type Category string

const (
	CategoryIdentifiers Category = "identifiers"
	CategoryFinancial   Category = "financial"
	CategoryContact     Category = "contact"
	CategoryBehavioral  Category = "behavioral"
	CategorySensitive   Category = "sensitive"
)

// InventoryEntry documents one kind of personal information the platform
// processes: why, where, for how long, and who may read it.
type InventoryEntry struct {
	ID              int64     `json:"id"`
	Category        Category  `json:"data_category"`
	DataType        string    `json:"data_type"`
	Purpose         string    `json:"purpose"`
	LegalBasis      string    `json:"legal_basis"`
	RetentionPeriod string    `json:"retention_period"`
	StorageLocation string    `json:"storage_location"`
	CloudProvider   string    `json:"cloud_provider"`
	Region          string    `json:"region"`
	Encrypted       bool      `json:"encrypted"`
	AccessRoles     []id.Role `json:"access_roles"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Inventory is the data inventory grouped for reporting.
type Inventory struct {
	Entries    []InventoryEntry `json:"data_fields"`
	Total      int              `json:"total_fields"`
	Categories map[Category]int `json:"categories"`
}

// NewInventory groups entries by category.
func NewInventory(entries []InventoryEntry) Inventory {
	inv := Inventory{
		Entries:    entries,
		Total:      len(entries),
		Categories: make(map[Category]int),
	}
	if inv.Entries == nil {
		inv.Entries = []InventoryEntry{}
	}
	for _, e := range entries {
		inv.Categories[e.Category]++
	}
	return inv
}

// Status is the compliance dashboard.
type Status struct {
	Compliance StatusCompliance `json:"popia_compliance"`
	Residency  StatusResidency  `json:"data_residency"`
	Security   StatusSecurity   `json:"security"`
	Retention  StatusRetention  `json:"retention"`
	CheckedAt  time.Time        `json:"checked_at"`
}

type StatusCompliance struct {
	TotalUsers              int     `json:"total_users"`
	ConsentRate             float64 `json:"consent_rate"`
	MFAAdoptionRate         float64 `json:"mfa_adoption_rate"`
	AuditLoggingActive      bool    `json:"audit_logging_active"`
	AuditRecordsLast24h     int     `json:"audit_records_last_24h"`
	DataInventoryMaintained bool    `json:"data_inventory_maintained"`
}

type StatusResidency struct {
	CloudProvider     string   `json:"cloud_provider"`
	Region            string   `json:"region"`
	AvailabilityZones []string `json:"availability_zones,omitempty"`
}

type StatusSecurity struct {
	EncryptionAtRest    bool `json:"encryption_enabled"`
	MFARequiredForAdmin bool `json:"mfa_required_for_admin"`
}

type StatusRetention struct {
	Enabled            bool   `json:"enabled"`
	UserDataDays       int    `json:"user_data_days"`
	AuditLogDays       int    `json:"audit_log_days"`
	AuditAnonymizeDays int    `json:"audit_anonymize_after_days"`
	Schedule           string `json:"schedule,omitempty"`
}

// Rate returns part/total, or 0 when total is zero.
func Rate(part, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(part) / float64(total)
}
