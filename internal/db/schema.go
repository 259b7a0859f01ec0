package db

// Schema is the DDL for the mailtriage audit database.
const Schema = `
CREATE TABLE IF NOT EXISTS audit_records (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id      TEXT NOT NULL,
    ts          TEXT NOT NULL,
    email_id    TEXT NOT NULL,
    thread_id   TEXT,
    from_addr   TEXT,
    subject     TEXT,
    mode        TEXT NOT NULL,
    model       TEXT NOT NULL,
    status      TEXT NOT NULL,
    error       TEXT,
    category    TEXT,
    priority    TEXT,
    action      TEXT,
    label       TEXT,
    star        INTEGER DEFAULT 0,
    archive     INTEGER DEFAULT 0,
    reason      TEXT
);

CREATE INDEX IF NOT EXISTS idx_audit_run ON audit_records(run_id);
CREATE INDEX IF NOT EXISTS idx_audit_email ON audit_records(email_id);
CREATE INDEX IF NOT EXISTS idx_audit_ts ON audit_records(ts DESC);
CREATE INDEX IF NOT EXISTS idx_audit_category ON audit_records(category);
`
