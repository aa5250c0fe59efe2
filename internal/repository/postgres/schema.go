package postgres

// Migration is one named schema step applied by cmd/migrate. Statements are
// idempotent (IF NOT EXISTS) so re-running the migrator is always safe.
type Migration struct {
	Name string
	SQL  string
}

// Tables lists every table the schema creates, in dependency order. The
// migrator's --list flag checks these against the live database.
var Tables = []string{
	"campaigns",
	"subscribers",
	"smtp_servers",
	"sends",
	"link_mappings",
	"open_events",
	"click_events",
	"conversion_events",
	"suppression_list",
	"send_queue",
	"workers",
}

// Migrations is the ordered DDL for the delivery pipeline.
var Migrations = []Migration{
	{
		Name: "001_campaigns",
		SQL: `
CREATE TABLE IF NOT EXISTS campaigns (
    id                 UUID PRIMARY KEY,
    name               TEXT NOT NULL,
    from_name          TEXT NOT NULL DEFAULT '',
    from_email         TEXT NOT NULL,
    reply_to           TEXT NOT NULL DEFAULT '',
    subject            TEXT NOT NULL,
    html_body          TEXT NOT NULL DEFAULT '',
    text_body          TEXT NOT NULL DEFAULT '',
    status             TEXT NOT NULL DEFAULT 'draft',
    emails_sent        BIGINT NOT NULL DEFAULT 0,
    emails_failed      BIGINT NOT NULL DEFAULT 0,
    opens              BIGINT NOT NULL DEFAULT 0,
    unique_opens       BIGINT NOT NULL DEFAULT 0,
    clicks             BIGINT NOT NULL DEFAULT 0,
    unique_clicks      BIGINT NOT NULL DEFAULT 0,
    conversions        BIGINT NOT NULL DEFAULT 0,
    unsubscribes       BIGINT NOT NULL DEFAULT 0,
    open_rate          DOUBLE PRECISION NOT NULL DEFAULT 0,
    click_rate         DOUBLE PRECISION NOT NULL DEFAULT 0,
    click_to_open_rate DOUBLE PRECISION NOT NULL DEFAULT 0,
    conversion_rate    DOUBLE PRECISION NOT NULL DEFAULT 0,
    created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_campaigns_status ON campaigns(status);
`,
	},
	{
		Name: "002_subscribers",
		SQL: `
CREATE TABLE IF NOT EXISTS subscribers (
    id               UUID PRIMARY KEY,
    email            TEXT NOT NULL UNIQUE,
    first_name       TEXT NOT NULL DEFAULT '',
    last_name        TEXT NOT NULL DEFAULT '',
    company          TEXT NOT NULL DEFAULT '',
    city             TEXT NOT NULL DEFAULT '',
    country          TEXT NOT NULL DEFAULT '',
    timezone         TEXT NOT NULL DEFAULT '',
    industry         TEXT NOT NULL DEFAULT '',
    phone            TEXT NOT NULL DEFAULT '',
    engagement_score INTEGER NOT NULL DEFAULT 0,
    total_opens      BIGINT NOT NULL DEFAULT 0,
    total_clicks     BIGINT NOT NULL DEFAULT 0,
    status           TEXT NOT NULL DEFAULT 'active',
    created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_subscribers_status ON subscribers(status);
`,
	},
	{
		Name: "003_smtp_servers",
		SQL: `
CREATE TABLE IF NOT EXISTS smtp_servers (
    id              TEXT PRIMARY KEY,
    name            TEXT NOT NULL,
    host            TEXT NOT NULL,
    port            INTEGER NOT NULL DEFAULT 25,
    username        TEXT NOT NULL DEFAULT '',
    password        TEXT NOT NULL DEFAULT '',
    helo_domain     TEXT NOT NULL DEFAULT '',
    priority        INTEGER NOT NULL DEFAULT 0,
    enabled         BOOLEAN NOT NULL DEFAULT TRUE,
    success_count   BIGINT NOT NULL DEFAULT 0,
    failure_count   BIGINT NOT NULL DEFAULT 0,
    avg_response_ms DOUBLE PRECISION NOT NULL DEFAULT 0,
    last_used_at    TIMESTAMPTZ
);
`,
	},
	{
		Name: "004_sends",
		SQL: `
CREATE TABLE IF NOT EXISTS sends (
    id             UUID PRIMARY KEY,
    tracking_token TEXT NOT NULL UNIQUE,
    campaign_id    UUID NOT NULL REFERENCES campaigns(id),
    subscriber_id  UUID NOT NULL REFERENCES subscribers(id),
    email          TEXT NOT NULL,
    subject        TEXT NOT NULL DEFAULT '',
    html_body      TEXT NOT NULL DEFAULT '',
    text_body      TEXT NOT NULL DEFAULT '',
    server_id      TEXT REFERENCES smtp_servers(id),
    status         TEXT NOT NULL DEFAULT 'pending',
    retry_count    INTEGER NOT NULL DEFAULT 0,
    last_error     TEXT NOT NULL DEFAULT '',
    created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    sent_at        TIMESTAMPTZ,
    delivered_at   TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_sends_campaign ON sends(campaign_id);
CREATE INDEX IF NOT EXISTS idx_sends_subscriber ON sends(subscriber_id);
`,
	},
	{
		Name: "005_link_mappings",
		SQL: `
CREATE TABLE IF NOT EXISTS link_mappings (
    id           TEXT PRIMARY KEY,
    send_id      UUID NOT NULL REFERENCES sends(id),
    original_url TEXT NOT NULL,
    position     INTEGER NOT NULL DEFAULT 1,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    expires_at   TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_link_mappings_send ON link_mappings(send_id);
`,
	},
	{
		Name: "006_open_events",
		SQL: `
CREATE TABLE IF NOT EXISTS open_events (
    id              UUID PRIMARY KEY,
    send_id         UUID NOT NULL REFERENCES sends(id),
    ip_address      TEXT NOT NULL DEFAULT '',
    user_agent      TEXT NOT NULL DEFAULT '',
    device          TEXT NOT NULL DEFAULT 'unknown',
    browser         TEXT NOT NULL DEFAULT 'unknown',
    country         TEXT NOT NULL DEFAULT 'unknown',
    city            TEXT NOT NULL DEFAULT 'unknown',
    is_unique       BOOLEAN NOT NULL DEFAULT FALSE,
    is_bot          BOOLEAN NOT NULL DEFAULT FALSE,
    seconds_to_open BIGINT NOT NULL DEFAULT 0,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE UNIQUE INDEX IF NOT EXISTS uniq_open_first_per_ip
    ON open_events(send_id, ip_address) WHERE is_unique;
CREATE INDEX IF NOT EXISTS idx_open_events_send ON open_events(send_id);
`,
	},
	{
		Name: "007_click_events",
		SQL: `
CREATE TABLE IF NOT EXISTS click_events (
    id              UUID PRIMARY KEY,
    send_id         UUID NOT NULL REFERENCES sends(id),
    link_id         TEXT NOT NULL REFERENCES link_mappings(id),
    destination_url TEXT NOT NULL DEFAULT '',
    ip_address      TEXT NOT NULL DEFAULT '',
    user_agent      TEXT NOT NULL DEFAULT '',
    device          TEXT NOT NULL DEFAULT 'unknown',
    browser         TEXT NOT NULL DEFAULT 'unknown',
    country         TEXT NOT NULL DEFAULT 'unknown',
    city            TEXT NOT NULL DEFAULT 'unknown',
    is_unique       BOOLEAN NOT NULL DEFAULT FALSE,
    is_bot          BOOLEAN NOT NULL DEFAULT FALSE,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE UNIQUE INDEX IF NOT EXISTS uniq_click_first_per_ip
    ON click_events(send_id, ip_address) WHERE is_unique;
CREATE INDEX IF NOT EXISTS idx_click_events_send ON click_events(send_id);
`,
	},
	{
		Name: "008_conversion_events",
		SQL: `
CREATE TABLE IF NOT EXISTS conversion_events (
    id                UUID PRIMARY KEY,
    send_id           UUID NOT NULL REFERENCES sends(id),
    campaign_id       UUID NOT NULL,
    subscriber_id     UUID NOT NULL,
    conversion_type   TEXT NOT NULL,
    value             DOUBLE PRECISION,
    attribution_model TEXT NOT NULL DEFAULT 'last_click',
    created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE (send_id, conversion_type)
);
`,
	},
	{
		Name: "009_suppression_list",
		SQL: `
CREATE TABLE IF NOT EXISTS suppression_list (
    id          UUID PRIMARY KEY,
    email       TEXT NOT NULL UNIQUE,
    md5_hash    TEXT NOT NULL,
    reason      TEXT NOT NULL,
    source      TEXT NOT NULL DEFAULT 'api',
    campaign_id UUID,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_suppression_md5 ON suppression_list(md5_hash);
`,
	},
	{
		Name: "010_send_queue",
		SQL: `
CREATE TABLE IF NOT EXISTS send_queue (
    id            UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    campaign_id   UUID NOT NULL REFERENCES campaigns(id),
    subscriber_id UUID NOT NULL REFERENCES subscribers(id),
    status        TEXT NOT NULL DEFAULT 'queued',
    attempts      INTEGER NOT NULL DEFAULT 0,
    last_error    TEXT NOT NULL DEFAULT '',
    claimed_by    TEXT NOT NULL DEFAULT '',
    claimed_at    TIMESTAMPTZ,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE (campaign_id, subscriber_id)
);
CREATE INDEX IF NOT EXISTS idx_send_queue_claim ON send_queue(status, created_at);
`,
	},
	{
		Name: "011_workers",
		SQL: `
CREATE TABLE IF NOT EXISTS workers (
    id                TEXT PRIMARY KEY,
    hostname          TEXT NOT NULL DEFAULT '',
    status            TEXT NOT NULL DEFAULT 'running',
    batches           BIGINT NOT NULL DEFAULT 0,
    sends             BIGINT NOT NULL DEFAULT 0,
    failures          BIGINT NOT NULL DEFAULT 0,
    started_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    last_heartbeat_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`,
	},
}
