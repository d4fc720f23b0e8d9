package store

const schema = `
CREATE TABLE IF NOT EXISTS topics (
    id                    INTEGER PRIMARY KEY AUTOINCREMENT,
    name                  TEXT NOT NULL,
    keywords              TEXT NOT NULL DEFAULT '[]',
    created_at            DATETIME NOT NULL,
    last_updated          DATETIME NOT NULL,
    frequency             TEXT NOT NULL DEFAULT 'weekly',
    custom_date_range     TEXT,
    detection_time        TEXT,
    notification_channels TEXT NOT NULL DEFAULT '["email"]',
    template              TEXT NOT NULL DEFAULT 'default'
);

CREATE INDEX IF NOT EXISTS idx_topics_name ON topics(name);

CREATE TABLE IF NOT EXISTS update_records (
    id               INTEGER PRIMARY KEY AUTOINCREMENT,
    topic_id         INTEGER NOT NULL REFERENCES topics(id) ON DELETE CASCADE,
    timestamp        DATETIME NOT NULL,
    status           TEXT NOT NULL,
    ppt_preview_link TEXT
);

CREATE INDEX IF NOT EXISTS idx_update_records_topic ON update_records(topic_id);

CREATE TABLE IF NOT EXISTS literature (
    id               INTEGER PRIMARY KEY AUTOINCREMENT,
    topic_id         INTEGER NOT NULL REFERENCES topics(id) ON DELETE CASCADE,
    title            TEXT NOT NULL,
    authors          TEXT NOT NULL DEFAULT '[]',
    publication_date DATETIME NOT NULL,
    journal_name     TEXT NOT NULL DEFAULT '',
    keywords         TEXT NOT NULL DEFAULT '[]',
    summary          TEXT NOT NULL DEFAULT '',
    literature_type  TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_literature_topic ON literature(topic_id);
CREATE INDEX IF NOT EXISTS idx_literature_published ON literature(publication_date);

CREATE TABLE IF NOT EXISTS ppt_push_records (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    topic_id     INTEGER NOT NULL,
    topic_name   TEXT NOT NULL,
    push_time    DATETIME NOT NULL,
    ppt_filename TEXT NOT NULL,
    recipients   TEXT NOT NULL DEFAULT '[]',
    channel      TEXT NOT NULL DEFAULT '',
    status       TEXT NOT NULL DEFAULT 'pending'
);

CREATE INDEX IF NOT EXISTS idx_push_records_topic_time ON ppt_push_records(topic_id, push_time);

CREATE TABLE IF NOT EXISTS ppt_diffs (
    id                 INTEGER PRIMARY KEY AUTOINCREMENT,
    current_record_id  INTEGER NOT NULL REFERENCES ppt_push_records(id),
    previous_record_id INTEGER NOT NULL REFERENCES ppt_push_records(id),
    summary            TEXT NOT NULL,
    created_at         DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_ppt_diffs_current ON ppt_diffs(current_record_id);
`
