package store

const schemaPostgres = `
CREATE TABLE IF NOT EXISTS acquisition_log (
    id            BIGSERIAL PRIMARY KEY,
    activation_id TEXT NOT NULL,
    request_id    BIGINT NOT NULL,
    from_state    TEXT NOT NULL,
    to_state      TEXT NOT NULL,
    detail        TEXT NOT NULL DEFAULT '',
    created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_acquisition_request ON acquisition_log(request_id);

CREATE TABLE IF NOT EXISTS operator_actions (
    id          BIGSERIAL PRIMARY KEY,
    request_id  BIGINT NOT NULL DEFAULT 0,
    action      TEXT NOT NULL,
    username    TEXT NOT NULL DEFAULT '',
    detail      TEXT NOT NULL DEFAULT '',
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS outbox (
    id          BIGSERIAL PRIMARY KEY,
    topic       TEXT NOT NULL,
    payload     BYTEA NOT NULL,
    msg_type    TEXT NOT NULL DEFAULT '',
    retries     INTEGER NOT NULL DEFAULT 0,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    sent_at     TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_outbox_pending ON outbox(sent_at) WHERE sent_at IS NULL;
`
