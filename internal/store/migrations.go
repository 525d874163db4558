package store

// migration represents a single schema migration.
type migration struct {
	Version int
	Name    string
	SQL     string
}

// migrations is the ordered list of all schema migrations.
var migrations = []migration{
	{
		Version: 1,
		Name:    "create conversations, entries and turns",
		SQL: `
			CREATE TABLE conversations (
				id          TEXT PRIMARY KEY,
				started_at  TEXT NOT NULL DEFAULT (datetime('now'))
			);

			CREATE TABLE entries (
				id               INTEGER PRIMARY KEY AUTOINCREMENT,
				conversation_id  TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
				position         INTEGER NOT NULL,
				role             TEXT NOT NULL,
				content          TEXT NOT NULL,
				created_at       TEXT NOT NULL DEFAULT (datetime('now'))
			);

			CREATE UNIQUE INDEX idx_entries_position ON entries (conversation_id, position);

			CREATE TABLE turns (
				id               TEXT PRIMARY KEY,
				conversation_id  TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
				utterance        TEXT NOT NULL,
				command          TEXT NOT NULL,
				reply            TEXT NOT NULL,
				tool_result      TEXT NOT NULL DEFAULT '',
				duration_ms      INTEGER NOT NULL DEFAULT 0,
				created_at       TEXT NOT NULL DEFAULT (datetime('now'))
			);

			CREATE INDEX idx_turns_conversation ON turns (conversation_id, created_at);
		`,
	},
	{
		Version: 2,
		Name:    "create turn search with FTS5",
		SQL: `
			CREATE VIRTUAL TABLE turns_fts USING fts5(
				utterance,
				reply,
				content='turns',
				content_rowid='rowid'
			);

			CREATE TRIGGER turns_ai AFTER INSERT ON turns BEGIN
				INSERT INTO turns_fts(rowid, utterance, reply)
				VALUES (new.rowid, new.utterance, new.reply);
			END;

			CREATE TRIGGER turns_ad AFTER DELETE ON turns BEGIN
				INSERT INTO turns_fts(turns_fts, rowid, utterance, reply)
				VALUES ('delete', old.rowid, old.utterance, old.reply);
			END;
		`,
	},
}
