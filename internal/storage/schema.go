package storage

// Timestamps are Unix milliseconds. Each *_ver table mirrors its current
// table and adds ver_id/ver_time; rows land there only when superseded.
const schema = `
CREATE TABLE IF NOT EXISTS card (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    type TEXT NOT NULL CHECK (type IN ('TRANSLATION', 'NOTE')),
    created_at INTEGER NOT NULL,
    paused INTEGER NOT NULL DEFAULT 0,
    last_checked_at INTEGER
);

CREATE TABLE IF NOT EXISTS card_ver (
    ver_id INTEGER PRIMARY KEY AUTOINCREMENT,
    ver_time INTEGER NOT NULL,
    id INTEGER NOT NULL,
    type TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    paused INTEGER NOT NULL,
    last_checked_at INTEGER
);
CREATE INDEX IF NOT EXISTS card_ver_id ON card_ver (id);

CREATE TABLE IF NOT EXISTS schedule (
    card_id INTEGER PRIMARY KEY,
    updated_at INTEGER NOT NULL,
    orig_delay TEXT NOT NULL,
    delay TEXT NOT NULL,
    random_factor REAL NOT NULL,
    next_access_in_millis INTEGER NOT NULL,
    next_access_at INTEGER NOT NULL,

    FOREIGN KEY (card_id) REFERENCES card (id)
);
CREATE INDEX IF NOT EXISTS schedule_next_access_at ON schedule (next_access_at);

CREATE TABLE IF NOT EXISTS schedule_ver (
    ver_id INTEGER PRIMARY KEY AUTOINCREMENT,
    ver_time INTEGER NOT NULL,
    card_id INTEGER NOT NULL,
    updated_at INTEGER NOT NULL,
    orig_delay TEXT NOT NULL,
    delay TEXT NOT NULL,
    random_factor REAL NOT NULL,
    next_access_in_millis INTEGER NOT NULL,
    next_access_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS schedule_ver_card_id ON schedule_ver (card_id);

CREATE TABLE IF NOT EXISTS translation_content (
    card_id INTEGER PRIMARY KEY,
    text_to_translate TEXT NOT NULL,
    translation TEXT NOT NULL,

    FOREIGN KEY (card_id) REFERENCES card (id)
);

CREATE TABLE IF NOT EXISTS translation_content_ver (
    ver_id INTEGER PRIMARY KEY AUTOINCREMENT,
    ver_time INTEGER NOT NULL,
    card_id INTEGER NOT NULL,
    text_to_translate TEXT NOT NULL,
    translation TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS translation_content_ver_card_id ON translation_content_ver (card_id);

CREATE TABLE IF NOT EXISTS note_content (
    card_id INTEGER PRIMARY KEY,
    text TEXT NOT NULL,

    FOREIGN KEY (card_id) REFERENCES card (id)
);

CREATE TABLE IF NOT EXISTS note_content_ver (
    ver_id INTEGER PRIMARY KEY AUTOINCREMENT,
    ver_time INTEGER NOT NULL,
    card_id INTEGER NOT NULL,
    text TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS note_content_ver_card_id ON note_content_ver (card_id);

CREATE TABLE IF NOT EXISTS tag (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL UNIQUE,
    created_at INTEGER NOT NULL
);

-- No ON DELETE action: deleting a tag that is still linked fails.
CREATE TABLE IF NOT EXISTS card_tag (
    card_id INTEGER NOT NULL,
    tag_id INTEGER NOT NULL,

    PRIMARY KEY (card_id, tag_id),
    FOREIGN KEY (card_id) REFERENCES card (id),
    FOREIGN KEY (tag_id) REFERENCES tag (id)
);
CREATE INDEX IF NOT EXISTS card_tag_tag_id ON card_tag (tag_id);

-- Kept after the card is deleted.
CREATE TABLE IF NOT EXISTS validation_log (
    rec_id INTEGER PRIMARY KEY AUTOINCREMENT,
    card_id INTEGER NOT NULL,
    timestamp INTEGER NOT NULL,
    provided_translation TEXT NOT NULL,
    matched INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS validation_log_card_id ON validation_log (card_id);

-- Markdown directories or git repositories that cards are imported from.
CREATE TABLE IF NOT EXISTS import_source (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    path TEXT NOT NULL UNIQUE,
    type TEXT NOT NULL CHECK (type IN ('local', 'git')),
    last_scanned INTEGER
);

CREATE TABLE IF NOT EXISTS imported_card (
    hash TEXT PRIMARY KEY,
    source_id INTEGER NOT NULL,
    card_id INTEGER NOT NULL,

    FOREIGN KEY (source_id) REFERENCES import_source (id)
);
`
