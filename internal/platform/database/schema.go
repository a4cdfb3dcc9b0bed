package database

// schema creates the tables used by the Postgres stores.
//
// audit_logs.actor_user_id is a weak reference with no foreign key: an audit
// insert never fails because its actor is gone, and erasing a user never waits
// on the audit table. The eraser clears the column for the erased user. The
// trigger rejects any UPDATE that touches a column other than actor_email and
// actor_user_id.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id                   BIGSERIAL PRIMARY KEY,
		email                TEXT NOT NULL UNIQUE,
		hashed_password      TEXT NOT NULL,
		first_name           TEXT NOT NULL DEFAULT '',
		last_name            TEXT NOT NULL DEFAULT '',
		phone_number         TEXT,
		id_number            TEXT,
		role                 TEXT NOT NULL DEFAULT 'user',
		is_active            BOOLEAN NOT NULL DEFAULT TRUE,
		is_verified          BOOLEAN NOT NULL DEFAULT FALSE,
		mfa_enabled          BOOLEAN NOT NULL DEFAULT FALSE,
		mfa_secret           TEXT,
		consent_given        BOOLEAN NOT NULL DEFAULT FALSE,
		consent_date         TIMESTAMPTZ,
		data_retention_until TIMESTAMPTZ,
		created_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
		last_login           TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS users_retention_idx
		ON users (data_retention_until) WHERE data_retention_until IS NOT NULL`,

	`CREATE TABLE IF NOT EXISTS transactions (
		id                BIGSERIAL PRIMARY KEY,
		user_id           BIGINT NOT NULL REFERENCES users (id) ON DELETE CASCADE,
		reference         TEXT NOT NULL UNIQUE,
		transaction_type  TEXT NOT NULL,
		amount_minor      BIGINT NOT NULL CHECK (amount_minor > 0),
		currency          TEXT NOT NULL DEFAULT 'ZAR',
		status            TEXT NOT NULL DEFAULT 'pending',
		description       TEXT,
		recipient_account TEXT,
		recipient_name    TEXT,
		created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
		completed_at      TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS transactions_user_idx ON transactions (user_id, created_at DESC)`,

	`CREATE TABLE IF NOT EXISTS consents (
		id           BIGSERIAL PRIMARY KEY,
		user_id      BIGINT NOT NULL REFERENCES users (id) ON DELETE CASCADE,
		purpose      TEXT NOT NULL,
		granted      BOOLEAN NOT NULL,
		granted_at   TIMESTAMPTZ,
		withdrawn_at TIMESTAMPTZ,
		ip_address   TEXT,
		UNIQUE (user_id, purpose)
	)`,

	`CREATE TABLE IF NOT EXISTS data_inventory (
		id               BIGSERIAL PRIMARY KEY,
		data_category    TEXT NOT NULL,
		data_type        TEXT NOT NULL,
		purpose          TEXT NOT NULL,
		legal_basis      TEXT NOT NULL,
		retention_period TEXT NOT NULL,
		storage_location TEXT NOT NULL,
		cloud_provider   TEXT NOT NULL,
		region           TEXT NOT NULL,
		encrypted        BOOLEAN NOT NULL DEFAULT TRUE,
		access_roles     TEXT[] NOT NULL DEFAULT '{}',
		updated_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (data_category, data_type)
	)`,

	`CREATE TABLE IF NOT EXISTS audit_logs (
		id                BIGSERIAL PRIMARY KEY,
		actor_user_id     BIGINT,
		actor_email       TEXT,
		action            TEXT NOT NULL,
		resource_type     TEXT NOT NULL,
		resource_id       BIGINT,
		description       TEXT,
		metadata          JSONB,
		ip_address        TEXT,
		user_agent        VARCHAR(500),
		recorded_at       TIMESTAMPTZ NOT NULL DEFAULT clock_timestamp(),
		cloud_provider    TEXT NOT NULL,
		region            TEXT NOT NULL,
		availability_zone TEXT
	)`,
	`ALTER TABLE audit_logs DROP CONSTRAINT IF EXISTS audit_logs_actor_user_id_fkey`,
	`CREATE INDEX IF NOT EXISTS audit_logs_recorded_idx ON audit_logs (recorded_at DESC, id DESC)`,
	`CREATE INDEX IF NOT EXISTS audit_logs_actor_idx ON audit_logs (actor_user_id)`,
	`CREATE INDEX IF NOT EXISTS audit_logs_action_idx ON audit_logs (action)`,

	`CREATE OR REPLACE FUNCTION audit_logs_guard_update() RETURNS trigger AS $$
	BEGIN
		IF NEW.id IS DISTINCT FROM OLD.id
			OR NEW.action IS DISTINCT FROM OLD.action
			OR NEW.resource_type IS DISTINCT FROM OLD.resource_type
			OR NEW.resource_id IS DISTINCT FROM OLD.resource_id
			OR NEW.description IS DISTINCT FROM OLD.description
			OR NEW.metadata IS DISTINCT FROM OLD.metadata
			OR NEW.ip_address IS DISTINCT FROM OLD.ip_address
			OR NEW.user_agent IS DISTINCT FROM OLD.user_agent
			OR NEW.recorded_at IS DISTINCT FROM OLD.recorded_at
			OR NEW.cloud_provider IS DISTINCT FROM OLD.cloud_provider
			OR NEW.region IS DISTINCT FROM OLD.region
			OR NEW.availability_zone IS DISTINCT FROM OLD.availability_zone
		THEN
			RAISE EXCEPTION 'audit_logs rows are immutable';
		END IF;
		IF NEW.actor_user_id IS NOT NULL AND NEW.actor_user_id IS DISTINCT FROM OLD.actor_user_id THEN
			RAISE EXCEPTION 'audit_logs actor can only be cleared';
		END IF;
		RETURN NEW;
	END;
	$$ LANGUAGE plpgsql`,
	`DROP TRIGGER IF EXISTS audit_logs_immutable ON audit_logs`,
	`CREATE TRIGGER audit_logs_immutable BEFORE UPDATE ON audit_logs
		FOR EACH ROW EXECUTE FUNCTION audit_logs_guard_update()`,
}
