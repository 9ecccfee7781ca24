package store

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS chunks (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	source      TEXT NOT NULL,
	chunk_index INTEGER NOT NULL,
	content     TEXT NOT NULL,
	metadata    TEXT NOT NULL DEFAULT '{}',
	created_at  INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_chunks_source ON chunks(source);

CREATE TABLE IF NOT EXISTS chunks_vec (
	id        INTEGER PRIMARY KEY,
	embedding BLOB NOT NULL
);

CREATE TABLE IF NOT EXISTS store_meta (
	id              INTEGER PRIMARY KEY CHECK (id = 1),
	dimension       INTEGER NOT NULL,
	schema_version  INTEGER NOT NULL
);
`

var pragmas = []string{
	"PRAGMA journal_mode = WAL",
	"PRAGMA busy_timeout = 5000",
	"PRAGMA synchronous = NORMAL",
	"PRAGMA foreign_keys = OFF",
}
