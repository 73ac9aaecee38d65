package sqlite

const schema = `
CREATE TABLE IF NOT EXISTS agents (
	asset                TEXT PRIMARY KEY,
	owner                TEXT NOT NULL,
	uri                  TEXT NOT NULL DEFAULT '',
	wallet               TEXT,
	collection           TEXT NOT NULL DEFAULT '',
	registry_id          TEXT NOT NULL DEFAULT '',
	atom_enabled         INTEGER NOT NULL DEFAULT 0,
	nft_name             TEXT NOT NULL DEFAULT '',
	status               TEXT NOT NULL DEFAULT 'PENDING',
	created_slot         INTEGER NOT NULL,
	created_tx_signature TEXT NOT NULL,
	tx_index             INTEGER,
	verified_at          TIMESTAMP,
	verified_slot        INTEGER,
	updated_at           TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS registries (
	registry_id   TEXT PRIMARY KEY,
	collection    TEXT NOT NULL,
	registry_type TEXT NOT NULL,
	authority     TEXT NOT NULL,
	status        TEXT NOT NULL DEFAULT 'PENDING',
	slot          INTEGER NOT NULL,
	tx_signature  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS agent_metadata (
	agent_id     TEXT NOT NULL,
	key          TEXT NOT NULL,
	value        BLOB NOT NULL,
	format       INTEGER NOT NULL,
	immutable    INTEGER NOT NULL DEFAULT 0,
	slot         INTEGER NOT NULL,
	tx_signature TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'PENDING',
	PRIMARY KEY (agent_id, key)
);

CREATE TABLE IF NOT EXISTS feedback (
	id                    TEXT PRIMARY KEY,
	agent_id              TEXT NOT NULL,
	client                TEXT NOT NULL,
	feedback_index        INTEGER NOT NULL,
	value                 TEXT NOT NULL,
	value_decimals        INTEGER NOT NULL,
	score                 INTEGER NOT NULL,
	tag1                  TEXT NOT NULL DEFAULT '',
	tag2                  TEXT NOT NULL DEFAULT '',
	endpoint              TEXT NOT NULL DEFAULT '',
	feedback_uri          TEXT NOT NULL DEFAULT '',
	feedback_hash         BLOB,
	running_digest        BLOB,
	revoked               INTEGER NOT NULL DEFAULT 0,
	revoked_tx_signature  TEXT NOT NULL DEFAULT '',
	revoked_slot          INTEGER,
	status                TEXT NOT NULL DEFAULT 'PENDING',
	created_slot          INTEGER NOT NULL,
	tx_index              INTEGER,
	UNIQUE (agent_id, client, feedback_index)
);

CREATE TABLE IF NOT EXISTS feedback_responses (
	id             TEXT PRIMARY KEY,
	feedback_id    TEXT NOT NULL,
	responder      TEXT NOT NULL,
	tx_signature   TEXT NOT NULL,
	response_uri   TEXT NOT NULL DEFAULT '',
	response_hash  BLOB,
	running_digest BLOB,
	slot           INTEGER NOT NULL,
	status         TEXT NOT NULL DEFAULT 'PENDING',
	UNIQUE (feedback_id, responder, tx_signature)
);

CREATE TABLE IF NOT EXISTS orphan_responses (
	id             TEXT PRIMARY KEY,
	agent_id       TEXT NOT NULL,
	client         TEXT NOT NULL,
	feedback_index INTEGER NOT NULL,
	responder      TEXT NOT NULL,
	tx_signature   TEXT NOT NULL,
	response_uri   TEXT NOT NULL DEFAULT '',
	response_hash  BLOB,
	running_digest BLOB,
	slot           INTEGER NOT NULL,
	created_at     TIMESTAMP NOT NULL,
	UNIQUE (agent_id, client, feedback_index, responder, tx_signature)
);

CREATE TABLE IF NOT EXISTS revocations (
	agent_id             TEXT NOT NULL,
	client               TEXT NOT NULL,
	feedback_index       INTEGER NOT NULL,
	seal_hash            BLOB,
	revoked_tx_signature TEXT NOT NULL,
	revoked_slot         INTEGER NOT NULL,
	PRIMARY KEY (agent_id, client, feedback_index)
);

CREATE TABLE IF NOT EXISTS validations (
	agent_id             TEXT NOT NULL,
	validator            TEXT NOT NULL,
	nonce                INTEGER NOT NULL,
	requester            TEXT NOT NULL DEFAULT '',
	request_tx_signature TEXT NOT NULL DEFAULT '',
	request_uri          TEXT NOT NULL DEFAULT '',
	request_hash         BLOB,
	response             INTEGER,
	response_uri         TEXT,
	response_hash        BLOB,
	status               TEXT NOT NULL DEFAULT 'PENDING',
	slot                 INTEGER NOT NULL,
	PRIMARY KEY (agent_id, validator, nonce)
);

CREATE TABLE IF NOT EXISTS indexer_cursor (
	id             TEXT PRIMARY KEY,
	last_slot      INTEGER NOT NULL,
	last_signature TEXT NOT NULL,
	source         TEXT NOT NULL
);
`
