// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/opensource-finance/sentinel/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrDuplicate    = errors.New("record already exists")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
	now    func() time.Time
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (*SQLRepository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
		now:    func() time.Time { return time.Now().UTC() },
	}

	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

func persistence(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", domain.ErrPersistence, op, err)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullable(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

const transactionColumns = `id, user_id, recipient_id, amount, currency, channel,
	transaction_type, kyc_tier, account_age, bvn_verified, recipient_new,
	device_fingerprint, country, state, ip_address, timestamp, user_history`

// SaveTransaction appends a transaction. Transactions are immutable: a
// second save with the same id returns ErrDuplicate.
func (r *SQLRepository) SaveTransaction(ctx context.Context, tx *domain.TransactionEvent) error {
	if tx == nil || tx.ID == "" {
		return fmt.Errorf("%w: transaction id is required", ErrInvalidInput)
	}

	history, err := json.Marshal(tx.UserHistory)
	if err != nil {
		return persistence("save transaction", err)
	}

	query := `
		INSERT INTO transactions (` + transactionColumns + `, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING
	`

	res, err := r.db.ExecContext(ctx, r.rebind(query),
		tx.ID, tx.UserID, tx.RecipientID, tx.Amount, tx.Currency,
		string(tx.Channel), string(tx.TransactionType), string(tx.KYCTier),
		tx.AccountAge, boolInt(tx.BVNVerified), boolInt(tx.RecipientNew),
		tx.DeviceFingerprint, tx.Location.Country, tx.Location.State, tx.Location.IPAddress,
		tx.Timestamp.UTC(), string(history), r.now(),
	)
	if err != nil {
		return persistence("save transaction", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return persistence("save transaction", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: transaction %s", ErrDuplicate, tx.ID)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*domain.TransactionEvent, error) {
	var (
		tx                    domain.TransactionEvent
		channel, txType, tier string
		bvn, recipientNew     int
		device, state, ip     sql.NullString
		history               string
	)

	if err := row.Scan(
		&tx.ID, &tx.UserID, &tx.RecipientID, &tx.Amount, &tx.Currency, &channel,
		&txType, &tier, &tx.AccountAge, &bvn, &recipientNew,
		&device, &tx.Location.Country, &state, &ip, &tx.Timestamp, &history,
	); err != nil {
		return nil, err
	}

	tx.Channel = domain.Channel(channel)
	tx.TransactionType = domain.TransactionType(txType)
	tx.KYCTier = domain.KYCTier(tier)
	tx.BVNVerified = bvn == 1
	tx.RecipientNew = recipientNew == 1
	tx.DeviceFingerprint = nullable(device)
	tx.Location.State = nullable(state)
	tx.Location.IPAddress = nullable(ip)
	tx.Timestamp = tx.Timestamp.UTC()

	if err := json.Unmarshal([]byte(history), &tx.UserHistory); err != nil {
		return nil, fmt.Errorf("decode user history of %s: %w", tx.ID, err)
	}
	return &tx, nil
}

// GetTransaction retrieves a transaction by ID.
func (r *SQLRepository) GetTransaction(ctx context.Context, txID string) (*domain.TransactionEvent, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = ?`

	tx, err := scanTransaction(r.db.QueryRowContext(ctx, r.rebind(query), txID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, persistence("get transaction", err)
	}
	return tx, nil
}

// ListTransactions returns transactions newest first.
func (r *SQLRepository) ListTransactions(ctx context.Context, page domain.Page) ([]*domain.TransactionEvent, error) {
	page = page.Normalize()
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		ORDER BY timestamp DESC, id
		LIMIT ? OFFSET ?
	`
	return r.queryTransactions(ctx, "list transactions", query, page.Limit, page.Offset)
}

// ListTransactionsByUser returns a user's transactions at or after since,
// newest first. A zero since lists everything.
func (r *SQLRepository) ListTransactionsByUser(ctx context.Context, userID string, since time.Time, page domain.Page) ([]*domain.TransactionEvent, error) {
	page = page.Normalize()
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE user_id = ? AND timestamp >= ?
		ORDER BY timestamp DESC, id
		LIMIT ? OFFSET ?
	`
	return r.queryTransactions(ctx, "list user transactions", query, userID, since.UTC(), page.Limit, page.Offset)
}

func (r *SQLRepository) queryTransactions(ctx context.Context, op, query string, args ...any) ([]*domain.TransactionEvent, error) {
	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, persistence(op, err)
	}
	defer rows.Close()

	transactions := make([]*domain.TransactionEvent, 0)
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, persistence(op, err)
		}
		transactions = append(transactions, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, persistence(op, err)
	}
	return transactions, nil
}

// SaveEvaluation stores an evaluation result.
func (r *SQLRepository) SaveEvaluation(ctx context.Context, eval *domain.Evaluation) error {
	if eval == nil || eval.ID == "" {
		return fmt.Errorf("%w: evaluation id is required", ErrInvalidInput)
	}

	var encErr error
	encode := func(v any) string {
		b, err := json.Marshal(v)
		if err != nil && encErr == nil {
			encErr = err
		}
		return string(b)
	}

	txData := encode(eval.Transaction)
	flags := encode(nonNil(eval.RuleFlags))
	results := encode(eval.RuleResults)
	concerns := encode(nonNil(eval.Concerns))
	metadata := encode(eval.Metadata)
	if encErr != nil {
		return persistence("save evaluation", encErr)
	}

	query := `
		INSERT INTO evaluations (
			id, run_key, tx_id, transaction_data, risk_score, rule_flags,
			rule_results, risk_level, concerns, reasoning, confidence,
			final_decision, summary, matched_priority, timestamp, metadata
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		eval.ID, eval.RunKey, eval.Transaction.ID, txData, eval.RiskScore, flags,
		results, string(eval.RiskLevel), concerns, eval.Reasoning, eval.Confidence,
		string(eval.FinalDecision), eval.Summary, eval.MatchedPriority, eval.Timestamp.UTC(), metadata,
	)
	if err != nil {
		return persistence("save evaluation", err)
	}
	return nil
}

// GetEvaluation retrieves an evaluation by ID.
func (r *SQLRepository) GetEvaluation(ctx context.Context, evalID string) (*domain.Evaluation, error) {
	query := `
		SELECT id, run_key, transaction_data, risk_score, rule_flags,
			   rule_results, risk_level, concerns, reasoning, confidence,
			   final_decision, summary, matched_priority, timestamp, metadata
		FROM evaluations
		WHERE id = ?
	`

	var (
		eval                                       domain.Evaluation
		txData, flags, results, concerns, metadata string
		level, decision                            string
	)

	err := r.db.QueryRowContext(ctx, r.rebind(query), evalID).Scan(
		&eval.ID, &eval.RunKey, &txData, &eval.RiskScore, &flags,
		&results, &level, &concerns, &eval.Reasoning, &eval.Confidence,
		&decision, &eval.Summary, &eval.MatchedPriority, &eval.Timestamp, &metadata,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, persistence("get evaluation", err)
	}

	eval.RiskLevel = domain.RiskLevel(level)
	eval.FinalDecision = domain.Decision(decision)
	eval.Timestamp = eval.Timestamp.UTC()

	for _, part := range []struct {
		raw string
		dst any
	}{
		{txData, &eval.Transaction},
		{flags, &eval.RuleFlags},
		{results, &eval.RuleResults},
		{concerns, &eval.Concerns},
		{metadata, &eval.Metadata},
	} {
		if err := json.Unmarshal([]byte(part.raw), part.dst); err != nil {
			return nil, persistence("decode evaluation", err)
		}
	}

	return &eval, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			n++
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}
