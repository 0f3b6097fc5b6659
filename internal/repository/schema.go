package repository

// Schema definitions for the Sentinel database.
// Compatible with both SQLite and PostgreSQL.

const schemaTransactions = `
CREATE TABLE IF NOT EXISTS transactions (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    recipient_id TEXT NOT NULL,
    amount DOUBLE PRECISION NOT NULL,
    currency TEXT NOT NULL,
    channel TEXT NOT NULL,
    transaction_type TEXT NOT NULL,
    kyc_tier TEXT NOT NULL,
    account_age DOUBLE PRECISION NOT NULL,
    bvn_verified INTEGER NOT NULL,
    recipient_new INTEGER NOT NULL,
    device_fingerprint TEXT,
    country TEXT NOT NULL,
    state TEXT,
    ip_address TEXT,
    timestamp TIMESTAMP NOT NULL,
    user_history TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_transactions_user ON transactions(user_id, timestamp);
CREATE INDEX IF NOT EXISTS idx_transactions_timestamp ON transactions(timestamp);
`

const schemaEvaluations = `
CREATE TABLE IF NOT EXISTS evaluations (
    id TEXT PRIMARY KEY,
    run_key TEXT NOT NULL,
    tx_id TEXT NOT NULL,
    transaction_data TEXT NOT NULL,
    risk_score DOUBLE PRECISION NOT NULL,
    rule_flags TEXT NOT NULL,
    rule_results TEXT NOT NULL,
    risk_level TEXT NOT NULL,
    concerns TEXT NOT NULL,
    reasoning TEXT NOT NULL,
    confidence DOUBLE PRECISION NOT NULL,
    final_decision TEXT NOT NULL,
    summary TEXT NOT NULL,
    matched_priority INTEGER NOT NULL,
    timestamp TIMESTAMP NOT NULL,
    metadata TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_evaluations_tx ON evaluations(tx_id);
CREATE INDEX IF NOT EXISTS idx_evaluations_decision ON evaluations(final_decision);
CREATE INDEX IF NOT EXISTS idx_evaluations_timestamp ON evaluations(timestamp);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaTransactions,
		schemaEvaluations,
	}
}
