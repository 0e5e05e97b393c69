package cache

const schema = `
-- The 'decks' table mirrors the remote service's deck listing.
CREATE TABLE IF NOT EXISTS decks (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    archived INTEGER NOT NULL DEFAULT 0
);

-- The 'cards' table is a read-optimized snapshot of remote cards. Due dates
-- are not stored; they are derived from last_review + interval_days, which
-- is what the remote service's own snapshot records.
CREATE TABLE IF NOT EXISTS cards (
    id TEXT PRIMARY KEY,
    deck_id TEXT NOT NULL,
    content TEXT NOT NULL,
    last_review DATETIME,
    interval_days INTEGER NOT NULL DEFAULT 0,
    review_count INTEGER NOT NULL DEFAULT 0,
    archived INTEGER NOT NULL DEFAULT 0,

    FOREIGN KEY(deck_id) REFERENCES decks(id)
);

-- Tracks when the snapshot was last refreshed from the remote service.
CREATE TABLE IF NOT EXISTS snapshot_meta (
    key TEXT PRIMARY KEY,
    value TEXT
);
`
