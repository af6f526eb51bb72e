package store

const schema = `
CREATE TABLE IF NOT EXISTS runs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    started_at TIMESTAMP NOT NULL,
    finished_at TIMESTAMP NOT NULL,
    marker_offset INTEGER,
    cancelled BOOLEAN NOT NULL DEFAULT 0,
    aborted BOOLEAN NOT NULL DEFAULT 0,
    changed_packages TEXT NOT NULL DEFAULT '[]',
    critical_packages TEXT NOT NULL DEFAULT '[]'
);

CREATE TABLE IF NOT EXISTS run_steps (
    run_id INTEGER NOT NULL,
    position INTEGER NOT NULL,
    source_id TEXT NOT NULL,
    title TEXT NOT NULL,
    command TEXT NOT NULL,
    exit_code INTEGER NOT NULL,
    error TEXT NOT NULL DEFAULT '',
    skipped BOOLEAN NOT NULL DEFAULT 0,
    started_at TIMESTAMP,
    finished_at TIMESTAMP,
    PRIMARY KEY (run_id, position),
    FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS run_pending (
    run_id INTEGER NOT NULL,
    position INTEGER NOT NULL,
    source_id TEXT NOT NULL,
    label TEXT NOT NULL,
    pending INTEGER NOT NULL,
    error TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (run_id, position),
    FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
`
