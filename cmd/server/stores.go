package main

import (
	"context"
	"database/sql"

	complianceservice "fintrail/internal/compliance/service"
	compliancestore "fintrail/internal/compliance/store"
	consentservice "fintrail/internal/consent/service"
	consentstore "fintrail/internal/consent/store"
	identityservice "fintrail/internal/identity/service"
	userstore "fintrail/internal/identity/store/user"
	ledgerservice "fintrail/internal/ledger/service"
	ledgerstore "fintrail/internal/ledger/store"
	"fintrail/internal/retention"
	id "fintrail/pkg/domain"
	audit "fintrail/pkg/platform/audit"
	auditmemory "fintrail/pkg/platform/audit/store/memory"
	auditpostgres "fintrail/pkg/platform/audit/store/postgres"
	txcontext "fintrail/pkg/platform/tx"
)

type userStore interface {
	identityservice.UserStore
	audit.Directory
	retention.ExpiredUsers
	retention.UserDeleter
	complianceservice.UserStats
}

type ledgerStore interface {
	ledgerservice.Store
	retention.OwnedDataDeleter
	CountByUser(ctx context.Context, userID id.UserID) (int, error)
}

type consentStore interface {
	consentservice.Store
	retention.OwnedDataDeleter
}

// stores groups the persistence backends: Postgres when a database is
// configured, in-memory otherwise.
type stores struct {
	users     userStore
	txns      ledgerStore
	consents  consentStore
	inventory complianceservice.InventoryStore
	audits    audit.Store
	tx        txcontext.Runner
}

func newStores(db *sql.DB) stores {
	if db == nil {
		return stores{
			users:     userstore.New(),
			txns:      ledgerstore.NewInMemory(),
			consents:  consentstore.NewInMemory(),
			inventory: compliancestore.NewInMemoryInventory(),
			audits:    auditmemory.NewInMemoryStore(),
			tx:        txcontext.Inline{},
		}
	}
	return stores{
		users:     userstore.NewPostgres(db),
		txns:      ledgerstore.NewPostgres(db),
		consents:  consentstore.NewPostgres(db),
		inventory: compliancestore.NewPostgresInventory(db),
		audits:    auditpostgres.New(db),
		tx:        txcontext.NewPostgres(db),
	}
}
