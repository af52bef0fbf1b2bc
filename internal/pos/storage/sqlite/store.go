// Package sqlite provides the SQLite-backed POS ledger and tenant directory.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/osetale/poslive/internal/platform/storage/sqlitemigrate"
	"github.com/osetale/poslive/internal/pos/storage"
	"github.com/osetale/poslive/internal/pos/storage/sqlite/migrations"
	_ "modernc.org/sqlite"
)

// Store provides SQLite-backed persistence for the ledger and directory.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a POS SQLite store at the provided path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_pragma=foreign_keys(ON)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	store := &Store{sqlDB: sqlDB}
	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return store, nil
}

// Close closes the underlying SQLite database.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// CreateTransaction inserts one ledger row and returns the committed record.
//
// The insert is a single statement: id, created_at, and updated_at are
// assigned here, and the row is re-read afterwards so the caller holds
// exactly what the ledger committed.
func (s *Store) CreateTransaction(ctx context.Context, record storage.TransactionRecord) (storage.TransactionRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.TransactionRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.TransactionRecord{}, fmt.Errorf("storage is not configured")
	}
	normalized, err := normalizeTransactionRecord(record)
	if err != nil {
		return storage.TransactionRecord{}, err
	}

	now := time.Now().UTC()
	result, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO transactions (terminal_id, amount, beneficiary, bank_name, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
`, normalized.TerminalID, normalized.Amount, normalized.Beneficiary, normalized.BankName, toMillis(now), toMillis(now))
	if err != nil {
		if isForeignKeyError(err) {
			return storage.TransactionRecord{}, storage.ErrNotFound
		}
		return storage.TransactionRecord{}, fmt.Errorf("insert transaction: %w", err)
	}

	insertID, err := result.LastInsertId()
	if err != nil {
		return storage.TransactionRecord{}, fmt.Errorf("read transaction insert id: %w", err)
	}
	return s.GetTransaction(ctx, insertID)
}

// GetTransaction loads one ledger row by canonical id.
func (s *Store) GetTransaction(ctx context.Context, id int64) (storage.TransactionRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.TransactionRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.TransactionRecord{}, fmt.Errorf("storage is not configured")
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT id, terminal_id, amount, beneficiary, bank_name, created_at, updated_at
FROM transactions
WHERE id = ?
`, id)
	return scanTransaction(row)
}

// ListTransactionsByTerminal lists a terminal's ledger rows by descending id.
func (s *Store) ListTransactionsByTerminal(ctx context.Context, terminalID string) ([]storage.TransactionRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	terminalID = strings.TrimSpace(terminalID)
	if terminalID == "" {
		return nil, fmt.Errorf("terminal id is required")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, terminal_id, amount, beneficiary, bank_name, created_at, updated_at
FROM transactions
WHERE terminal_id = ?
ORDER BY id DESC
`, terminalID)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []storage.TransactionRecord
	for rows.Next() {
		record, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return records, nil
}

// GetTerminal loads one terminal with its joined channel endpoint.
func (s *Store) GetTerminal(ctx context.Context, terminalID string) (storage.TerminalRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.TerminalRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.TerminalRecord{}, fmt.Errorf("storage is not configured")
	}
	terminalID = strings.TrimSpace(terminalID)
	if terminalID == "" {
		return storage.TerminalRecord{}, fmt.Errorf("terminal id is required")
	}

	var record storage.TerminalRecord
	err := s.sqlDB.QueryRowContext(ctx, `
SELECT terminals.id, terminals.account_name, terminals.account_number,
       terminals.channel_instance_id, channel_instances.url
FROM terminals
JOIN channel_instances ON terminals.channel_instance_id = channel_instances.id
WHERE terminals.id = ?
`, terminalID).Scan(&record.ID, &record.AccountName, &record.AccountNumber, &record.ChannelInstanceID, &record.ChannelURL)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.TerminalRecord{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.TerminalRecord{}, fmt.Errorf("get terminal: %w", err)
	}
	return record, nil
}

// ResolveTenant maps a terminal to its channel instance and endpoint.
func (s *Store) ResolveTenant(ctx context.Context, terminalID string) (storage.TenantRoute, error) {
	record, err := s.GetTerminal(ctx, terminalID)
	if err != nil {
		return storage.TenantRoute{}, err
	}
	return storage.TenantRoute{
		ChannelInstanceID: record.ChannelInstanceID,
		Endpoint:          record.ChannelURL,
	}, nil
}

// GetChannelInstance loads one channel endpoint row by id.
func (s *Store) GetChannelInstance(ctx context.Context, instanceID string) (storage.ChannelInstanceRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.ChannelInstanceRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.ChannelInstanceRecord{}, fmt.Errorf("storage is not configured")
	}
	instanceID = strings.TrimSpace(instanceID)
	if instanceID == "" {
		return storage.ChannelInstanceRecord{}, fmt.Errorf("channel instance id is required")
	}

	var record storage.ChannelInstanceRecord
	err := s.sqlDB.QueryRowContext(ctx, `
SELECT id, url FROM channel_instances WHERE id = ?
`, instanceID).Scan(&record.ID, &record.URL)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ChannelInstanceRecord{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.ChannelInstanceRecord{}, fmt.Errorf("get channel instance: %w", err)
	}
	return record, nil
}

// PutTerminal persists one terminal row.
func (s *Store) PutTerminal(ctx context.Context, record storage.TerminalRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	record.ID = strings.TrimSpace(record.ID)
	record.ChannelInstanceID = strings.TrimSpace(record.ChannelInstanceID)
	if record.ID == "" {
		return fmt.Errorf("terminal id is required")
	}
	if record.ChannelInstanceID == "" {
		return fmt.Errorf("channel instance id is required")
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO terminals (id, account_name, account_number, channel_instance_id)
VALUES (?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    account_name = excluded.account_name,
    account_number = excluded.account_number,
    channel_instance_id = excluded.channel_instance_id
`, record.ID, record.AccountName, record.AccountNumber, record.ChannelInstanceID)
	if err != nil {
		if isForeignKeyError(err) {
			return storage.ErrNotFound
		}
		return fmt.Errorf("put terminal: %w", err)
	}
	return nil
}

// PutChannelInstance persists one channel endpoint row.
func (s *Store) PutChannelInstance(ctx context.Context, record storage.ChannelInstanceRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	record.ID = strings.TrimSpace(record.ID)
	record.URL = strings.TrimSpace(record.URL)
	if record.ID == "" {
		return fmt.Errorf("channel instance id is required")
	}
	if record.URL == "" {
		return fmt.Errorf("channel instance url is required")
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO channel_instances (id, url)
VALUES (?, ?)
ON CONFLICT(id) DO UPDATE SET url = excluded.url
`, record.ID, record.URL)
	if err != nil {
		return fmt.Errorf("put channel instance: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (storage.TransactionRecord, error) {
	var record storage.TransactionRecord
	var createdAt, updatedAt int64
	err := row.Scan(&record.ID, &record.TerminalID, &record.Amount, &record.Beneficiary, &record.BankName, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.TransactionRecord{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.TransactionRecord{}, fmt.Errorf("scan transaction: %w", err)
	}
	record.CreatedAt = fromMillis(createdAt)
	record.UpdatedAt = fromMillis(updatedAt)
	return record, nil
}

func normalizeTransactionRecord(record storage.TransactionRecord) (storage.TransactionRecord, error) {
	record.TerminalID = strings.TrimSpace(record.TerminalID)
	record.Beneficiary = strings.TrimSpace(record.Beneficiary)
	record.BankName = strings.TrimSpace(record.BankName)
	if record.TerminalID == "" {
		return storage.TransactionRecord{}, fmt.Errorf("terminal id is required")
	}
	if record.Amount <= 0 {
		return storage.TransactionRecord{}, fmt.Errorf("amount must be positive")
	}
	if record.Beneficiary == "" {
		return storage.TransactionRecord{}, fmt.Errorf("beneficiary is required")
	}
	if record.BankName == "" {
		return storage.TransactionRecord{}, fmt.Errorf("bank name is required")
	}
	return record, nil
}

func isForeignKeyError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "foreign key")
}
