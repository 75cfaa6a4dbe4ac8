package storage

// schema is applied on open; every statement is idempotent.
const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id             TEXT PRIMARY KEY,
	start_time     TIMESTAMP NOT NULL,
	end_time       TIMESTAMP NOT NULL,
	duration_ns    INTEGER NOT NULL,
	stopped_early  INTEGER NOT NULL DEFAULT 0,
	environment    TEXT NOT NULL,
	passed         INTEGER NOT NULL,
	failed         INTEGER NOT NULL,
	errors         INTEGER NOT NULL,
	skipped        INTEGER NOT NULL,
	xfailed        INTEGER NOT NULL,
	xpassed        INTEGER NOT NULL,
	total          INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS executions (
	id           TEXT PRIMARY KEY,
	run_id       TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	position     INTEGER NOT NULL,
	full_name    TEXT NOT NULL,
	status       TEXT NOT NULL,
	duration_ns  INTEGER NOT NULL,
	error        TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_executions_run ON executions(run_id, position);

CREATE TABLE IF NOT EXISTS assertions (
	id            TEXT PRIMARY KEY,
	execution_id  TEXT NOT NULL REFERENCES executions(id) ON DELETE CASCADE,
	position      INTEGER NOT NULL,
	condition     TEXT NOT NULL,
	passed        INTEGER NOT NULL,
	message       TEXT NOT NULL DEFAULT '',
	detail        TEXT NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_assertions_execution ON assertions(execution_id, position);

CREATE TABLE IF NOT EXISTS metrics (
	run_id  TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	name    TEXT NOT NULL,
	scope   TEXT NOT NULL,
	count   INTEGER NOT NULL,
	mean    REAL NOT NULL,
	detail  TEXT NOT NULL DEFAULT '{}',
	PRIMARY KEY (run_id, name)
);
`
