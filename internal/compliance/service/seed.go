package service

import (
	"context"
	"fmt"
	"time"

	"fintrail/internal/compliance/models"
	"fintrail/internal/platform/config"
	id "fintrail/pkg/domain"
)

// DefaultInventory describes the personal information the platform processes.
// Retention periods and residency tags come from cfg.
func DefaultInventory(cfg config.Server) []models.InventoryEntry {
	userData := days(cfg.Retention.UserData)
	auditLog := days(cfg.Retention.AuditLog)
	staff := []id.Role{id.RoleAdmin, id.RoleAuditor}

	entry := func(category models.Category, dataType, purpose, basis, retention, location string) models.InventoryEntry {
		return models.InventoryEntry{
			Category:        category,
			DataType:        dataType,
			Purpose:         purpose,
			LegalBasis:      basis,
			RetentionPeriod: retention,
			StorageLocation: location,
			CloudProvider:   cfg.Residency.CloudProvider,
			Region:          cfg.Residency.Region,
			Encrypted:       cfg.Security.EncryptionAtRest,
			AccessRoles:     staff,
		}
	}

	return []models.InventoryEntry{
		entry(models.CategoryIdentifiers, "email", "Account login and service communication", "contract", userData, "users.email"),
		entry(models.CategoryIdentifiers, "full_name", "Customer identification", "contract", userData, "users.first_name, users.last_name"),
		entry(models.CategoryIdentifiers, "id_number", "Know-your-customer verification", "legal obligation", userData, "users.id_number"),
		entry(models.CategoryFinancial, "transactions", "Executing and recording payments", "legal obligation", userData, "transactions"),
		entry(models.CategoryFinancial, "recipient_account", "Routing transfers to beneficiaries", "contract", userData, "transactions.recipient_account"),
		entry(models.CategoryContact, "phone_number", "Account security notifications", "consent", userData, "users.phone_number"),
		entry(models.CategoryContact, "ip_address", "Fraud prevention and security auditing", "legitimate interest", auditLog, "audit_logs.ip_address"),
		entry(models.CategoryBehavioral, "consent_preferences", "Honouring processing choices", "legal obligation", userData, "consents"),
		entry(models.CategoryBehavioral, "activity_log", "Accountability and security safeguards", "legal obligation", auditLog, "audit_logs"),
		entry(models.CategorySensitive, "credentials", "Authentication", "contract", userData, "users.hashed_password, users.mfa_secret"),
	}
}

// Seed upserts entries so the inventory reflects the running configuration.
func Seed(ctx context.Context, store InventoryStore, entries []models.InventoryEntry, now time.Time) error {
	for i := range entries {
		e := entries[i]
		e.UpdatedAt = now
		if err := store.Upsert(ctx, &e); err != nil {
			return fmt.Errorf("seed inventory %s/%s: %w", e.Category, e.DataType, err)
		}
	}
	return nil
}

func days(d time.Duration) string {
	return fmt.Sprintf("%d days", int(d/(24*time.Hour)))
}
