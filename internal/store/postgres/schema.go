package postgres

const schema = `
CREATE TABLE IF NOT EXISTS agents (
	asset                TEXT PRIMARY KEY,
	owner                TEXT NOT NULL,
	uri                  TEXT NOT NULL DEFAULT '',
	wallet               TEXT,
	collection           TEXT NOT NULL DEFAULT '',
	registry_id          TEXT NOT NULL DEFAULT '',
	atom_enabled         BOOLEAN NOT NULL DEFAULT false,
	nft_name             TEXT NOT NULL DEFAULT '',
	status               TEXT NOT NULL DEFAULT 'PENDING',
	created_slot         BIGINT NOT NULL,
	created_tx_signature TEXT NOT NULL,
	tx_index             BIGINT,
	verified_at          TIMESTAMPTZ,
	verified_slot        BIGINT,
	updated_at           TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS registries (
	registry_id   TEXT PRIMARY KEY,
	collection    TEXT NOT NULL,
	registry_type TEXT NOT NULL,
	authority     TEXT NOT NULL,
	status        TEXT NOT NULL DEFAULT 'PENDING',
	slot          BIGINT NOT NULL,
	tx_signature  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS agent_metadata (
	id           BIGSERIAL PRIMARY KEY,
	agent_id     TEXT NOT NULL,
	key          TEXT NOT NULL,
	value        BYTEA NOT NULL,
	format       SMALLINT NOT NULL,
	immutable    BOOLEAN NOT NULL DEFAULT false,
	slot         BIGINT NOT NULL,
	tx_signature TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'PENDING',
	UNIQUE (agent_id, key)
);

CREATE TABLE IF NOT EXISTS feedback (
	id                    TEXT PRIMARY KEY,
	agent_id              TEXT NOT NULL,
	client                TEXT NOT NULL,
	feedback_index        BIGINT NOT NULL,
	value                 TEXT NOT NULL,
	value_decimals        INTEGER NOT NULL,
	score                 INTEGER NOT NULL,
	tag1                  TEXT NOT NULL DEFAULT '',
	tag2                  TEXT NOT NULL DEFAULT '',
	endpoint              TEXT NOT NULL DEFAULT '',
	feedback_uri          TEXT NOT NULL DEFAULT '',
	feedback_hash         BYTEA,
	running_digest        BYTEA,
	revoked               BOOLEAN NOT NULL DEFAULT false,
	revoked_tx_signature  TEXT NOT NULL DEFAULT '',
	revoked_slot          BIGINT,
	status                TEXT NOT NULL DEFAULT 'PENDING',
	created_slot          BIGINT NOT NULL,
	tx_index              BIGINT,
	UNIQUE (agent_id, client, feedback_index)
);

CREATE TABLE IF NOT EXISTS feedback_responses (
	id             TEXT PRIMARY KEY,
	feedback_id    TEXT NOT NULL,
	responder      TEXT NOT NULL,
	tx_signature   TEXT NOT NULL,
	response_uri   TEXT NOT NULL DEFAULT '',
	response_hash  BYTEA,
	running_digest BYTEA,
	slot           BIGINT NOT NULL,
	status         TEXT NOT NULL DEFAULT 'PENDING',
	UNIQUE (feedback_id, responder, tx_signature)
);

CREATE TABLE IF NOT EXISTS orphan_responses (
	id             TEXT PRIMARY KEY,
	agent_id       TEXT NOT NULL,
	client         TEXT NOT NULL,
	feedback_index BIGINT NOT NULL,
	responder      TEXT NOT NULL,
	tx_signature   TEXT NOT NULL,
	response_uri   TEXT NOT NULL DEFAULT '',
	response_hash  BYTEA,
	running_digest BYTEA,
	slot           BIGINT NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL,
	UNIQUE (agent_id, client, feedback_index, responder, tx_signature)
);

CREATE TABLE IF NOT EXISTS revocations (
	agent_id             TEXT NOT NULL,
	client               TEXT NOT NULL,
	feedback_index       BIGINT NOT NULL,
	seal_hash            BYTEA,
	revoked_tx_signature TEXT NOT NULL,
	revoked_slot         BIGINT NOT NULL,
	PRIMARY KEY (agent_id, client, feedback_index)
);

CREATE TABLE IF NOT EXISTS validations (
	id                   BIGSERIAL PRIMARY KEY,
	agent_id             TEXT NOT NULL,
	validator            TEXT NOT NULL,
	nonce                BIGINT NOT NULL,
	requester            TEXT NOT NULL DEFAULT '',
	request_tx_signature TEXT NOT NULL DEFAULT '',
	request_uri          TEXT NOT NULL DEFAULT '',
	request_hash         BYTEA,
	response             INTEGER,
	response_uri         TEXT,
	response_hash        BYTEA,
	status               TEXT NOT NULL DEFAULT 'PENDING',
	slot                 BIGINT NOT NULL,
	UNIQUE (agent_id, validator, nonce)
);

CREATE TABLE IF NOT EXISTS indexer_cursor (
	id             TEXT PRIMARY KEY,
	last_slot      BIGINT NOT NULL,
	last_signature TEXT NOT NULL,
	source         TEXT NOT NULL
);
`
