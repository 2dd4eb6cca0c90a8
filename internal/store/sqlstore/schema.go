package sqlstore

// schemaSQLite is applied directly on startup for the embedded standalone
// backend. Postgres deployments use golang-migrate against schemaPostgres
// instead (see migrations/ and cmd/migrate.go) — modernc.org/sqlite has no
// maintained golang-migrate driver in the retrieved pack, so the SQLite path
// self-migrates with idempotent CREATE TABLE IF NOT EXISTS statements.
const schemaSQLite = `
CREATE TABLE IF NOT EXISTS conversations (
	context_key        TEXT PRIMARY KEY,
	personality        TEXT NOT NULL DEFAULT '',
	personality_locked INTEGER NOT NULL DEFAULT 0,
	messages           TEXT NOT NULL DEFAULT '[]',
	settings           TEXT NOT NULL DEFAULT '{}',
	launch_count       INTEGER NOT NULL DEFAULT 0,
	moderated_until    TIMESTAMP,
	created_at         TIMESTAMP NOT NULL,
	updated_at         TIMESTAMP NOT NULL,
	last_activity_at   TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS lora_entries (
	name                   TEXT PRIMARY KEY,
	file_path              TEXT NOT NULL,
	alias                  TEXT NOT NULL DEFAULT '',
	description            TEXT NOT NULL DEFAULT '',
	trigger_words          TEXT NOT NULL DEFAULT '[]',
	category               TEXT NOT NULL DEFAULT '',
	content_type           TEXT NOT NULL DEFAULT 'safe',
	tags                   TEXT NOT NULL DEFAULT '[]',
	training_tag_frequency TEXT NOT NULL DEFAULT '{}',
	recommended_weight     REAL NOT NULL DEFAULT 1.0,
	created_at             TIMESTAMP,
	last_synced            TIMESTAMP
);

CREATE TABLE IF NOT EXISTS classifier_categories (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	name        TEXT NOT NULL,
	parent_id   INTEGER NOT NULL DEFAULT 0,
	safety_tier TEXT NOT NULL DEFAULT 'safe',
	words       TEXT NOT NULL DEFAULT '[]',
	confidences TEXT NOT NULL DEFAULT '[]'
);

CREATE TABLE IF NOT EXISTS queue_jobs (
	id            TEXT PRIMARY KEY,
	context_key   TEXT NOT NULL,
	priority      INTEGER NOT NULL DEFAULT 0,
	status        TEXT NOT NULL,
	request       BLOB NOT NULL,
	result_paths  TEXT NOT NULL DEFAULT '[]',
	error         TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMP NOT NULL,
	started_at    TIMESTAMP,
	finished_at   TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_queue_jobs_context ON queue_jobs(context_key);

CREATE TABLE IF NOT EXISTS hosting_credentials (
	user_id    TEXT PRIMARY KEY,
	api_key    TEXT NOT NULL,
	album_id   TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL
);
`

// schemaPostgres mirrors schemaSQLite for golang-migrate's "postgres" driver
// (see migrations/0001_init.up.sql, generated from this statement).
const schemaPostgres = `
CREATE TABLE IF NOT EXISTS conversations (
	context_key        TEXT PRIMARY KEY,
	personality        TEXT NOT NULL DEFAULT '',
	personality_locked BOOLEAN NOT NULL DEFAULT false,
	messages           JSONB NOT NULL DEFAULT '[]',
	settings           JSONB NOT NULL DEFAULT '{}',
	launch_count       INTEGER NOT NULL DEFAULT 0,
	moderated_until    TIMESTAMPTZ,
	created_at         TIMESTAMPTZ NOT NULL,
	updated_at         TIMESTAMPTZ NOT NULL,
	last_activity_at   TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS lora_entries (
	name                   TEXT PRIMARY KEY,
	file_path              TEXT NOT NULL,
	alias                  TEXT NOT NULL DEFAULT '',
	description            TEXT NOT NULL DEFAULT '',
	trigger_words          JSONB NOT NULL DEFAULT '[]',
	category               TEXT NOT NULL DEFAULT '',
	content_type           TEXT NOT NULL DEFAULT 'safe',
	tags                   JSONB NOT NULL DEFAULT '[]',
	training_tag_frequency JSONB NOT NULL DEFAULT '{}',
	recommended_weight     DOUBLE PRECISION NOT NULL DEFAULT 1.0,
	created_at             TIMESTAMPTZ,
	last_synced            TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS classifier_categories (
	id          BIGSERIAL PRIMARY KEY,
	name        TEXT NOT NULL,
	parent_id   BIGINT NOT NULL DEFAULT 0,
	safety_tier TEXT NOT NULL DEFAULT 'safe',
	words       JSONB NOT NULL DEFAULT '[]',
	confidences JSONB NOT NULL DEFAULT '[]'
);

CREATE TABLE IF NOT EXISTS queue_jobs (
	id            TEXT PRIMARY KEY,
	context_key   TEXT NOT NULL,
	priority      INTEGER NOT NULL DEFAULT 0,
	status        TEXT NOT NULL,
	request       BYTEA NOT NULL,
	result_paths  JSONB NOT NULL DEFAULT '[]',
	error         TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMPTZ NOT NULL,
	started_at    TIMESTAMPTZ,
	finished_at   TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_queue_jobs_context ON queue_jobs(context_key);

CREATE TABLE IF NOT EXISTS hosting_credentials (
	user_id    TEXT PRIMARY KEY,
	api_key    TEXT NOT NULL,
	album_id   TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL
);
`
