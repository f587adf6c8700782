package sqlite

// schema mirrors the postgres backend's JSONB-document layout using TEXT
// columns (sqlite has no native JSON column type, only JSON1 functions).
const schema = `
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	active INTEGER NOT NULL DEFAULT 1,
	data TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS projects (
	user_id TEXT NOT NULL,
	id TEXT NOT NULL,
	status TEXT NOT NULL,
	data TEXT NOT NULL,
	PRIMARY KEY (user_id, id)
);
CREATE INDEX IF NOT EXISTS projects_user_status_idx ON projects (user_id, status);

CREATE TABLE IF NOT EXISTS mappings (
	user_id TEXT NOT NULL,
	message_id TEXT NOT NULL,
	thread_id TEXT NOT NULL,
	project_id TEXT NOT NULL,
	active INTEGER NOT NULL,
	data TEXT NOT NULL,
	PRIMARY KEY (user_id, message_id)
);
CREATE INDEX IF NOT EXISTS mappings_project_idx ON mappings (user_id, project_id);
CREATE INDEX IF NOT EXISTS mappings_thread_idx ON mappings (user_id, thread_id);

CREATE TABLE IF NOT EXISTS attachments (
	user_id TEXT NOT NULL,
	message_id TEXT NOT NULL,
	attachment_id TEXT NOT NULL,
	data TEXT NOT NULL,
	PRIMARY KEY (user_id, message_id, attachment_id)
);

CREATE TABLE IF NOT EXISTS corrections (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	project_id TEXT NOT NULL,
	processed INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL,
	data TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS corrections_user_unprocessed_idx ON corrections (user_id, processed, created_at);

CREATE TABLE IF NOT EXISTS learning_patterns (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	active INTEGER NOT NULL DEFAULT 1,
	data TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS watches (
	user_id TEXT PRIMARY KEY,
	data TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS scan_configs (
	user_id TEXT PRIMARY KEY,
	data TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS audit_events (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	at DATETIME NOT NULL,
	data TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS audit_events_user_at_idx ON audit_events (user_id, at DESC);

CREATE TABLE IF NOT EXISTS queue_items (
	id TEXT PRIMARY KEY,
	queue TEXT NOT NULL,
	user_id TEXT NOT NULL,
	dedup_key TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	priority INTEGER NOT NULL,
	next_visible_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	lease_expires_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	created_at DATETIME NOT NULL,
	data TEXT NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS queue_items_dedup_idx ON queue_items (queue, user_id, dedup_key) WHERE dedup_key <> '';
CREATE INDEX IF NOT EXISTS queue_items_reserve_idx ON queue_items (queue, status, priority, created_at);
`
