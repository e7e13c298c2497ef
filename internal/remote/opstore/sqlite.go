// Package opstore provides SQLite persistence for the sandbox API server.
// It holds users, operations and the reception ledger that makes a second
// confirmation of the same expedition fail.
package opstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xolex/xolex/internal/models"
	"golang.org/x/crypto/bcrypt"
	_ "modernc.org/sqlite"
)

// Sentinel errors for expected conditions.
var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAlreadyReceived    = errors.New("already received")
	ErrNotReceivable      = errors.New("operation is not an in-transit expedition")
	ErrUserExists         = errors.New("user already exists")
)

// User is a sandbox account.
type User struct {
	ID    string
	Email string
	Name  string
}

// Reception is a row of the reception ledger.
type Reception struct {
	ID          string
	OperationID int64
	UserID      string
	ReceivedAt  time.Time
	Record      models.Operation // the RECEPTION operation created for it
}

// Store represents the SQLite database store.
type Store struct {
	db *sql.DB
}

// New creates a new store connection.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single writer keeps the reception check-and-insert serialized.
	db.SetMaxOpenConns(1)
	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Initialize creates the database schema.
func (s *Store) Initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL DEFAULT '',
		password_hash TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS operations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		type TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT '',
		name TEXT NOT NULL DEFAULT '',
		quantity INTEGER,
		site TEXT NOT NULL DEFAULT '',
		destination TEXT NOT NULL DEFAULT '',
		batch_number TEXT,
		date TEXT,
		created_at TEXT NOT NULL,
		user_id TEXT
	);

	-- One reception per expedition
	CREATE TABLE IF NOT EXISTS receptions (
		id TEXT PRIMARY KEY,
		operation_id INTEGER NOT NULL UNIQUE,
		record_id INTEGER NOT NULL,
		user_id TEXT NOT NULL,
		received_at TEXT NOT NULL,
		FOREIGN KEY (operation_id) REFERENCES operations(id),
		FOREIGN KEY (record_id) REFERENCES operations(id)
	);

	CREATE INDEX IF NOT EXISTS idx_operations_name ON operations(name);
	CREATE INDEX IF NOT EXISTS idx_operations_user ON operations(user_id);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// CreateUser adds an account with a bcrypt-hashed password.
func (s *Store) CreateUser(ctx context.Context, email, name, password string) (*User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, fmt.Errorf("email and password are required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u := &User{ID: uuid.NewString(), Email: email, Name: name}
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO users (id, email, name, password_hash) VALUES (?, ?, ?, ?)",
		u.ID, u.Email, u.Name, string(hash),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrUserExists
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return u, nil
}

// Authenticate returns the user whose email and password match.
func (s *Store) Authenticate(ctx context.Context, email, password string) (*User, error) {
	var u User
	var hash string
	err := s.db.QueryRowContext(ctx,
		"SELECT id, email, name, password_hash FROM users WHERE email = ?",
		strings.ToLower(strings.TrimSpace(email)),
	).Scan(&u.ID, &u.Email, &u.Name, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("query user: %w", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	return &u, nil
}

// InsertOperation stores op and returns its new id. op.ID is ignored.
func (s *Store) InsertOperation(ctx context.Context, op *models.Operation) (int64, error) {
	return insertOperation(ctx, s.db, op)
}

// timeLayout is fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertOperation(ctx context.Context, db execer, op *models.Operation) (int64, error) {
	createdAt := op.CreatedAt.Time
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	res, err := db.ExecContext(ctx, `
		INSERT INTO operations (type, status, name, quantity, site, destination, batch_number, date, created_at, user_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(op.Type), op.Status, op.Name, nullFlexInt(op.Quantity), op.Site, op.Destination,
		nullString(op.BatchNumber()), nullTime(op.Date.Time), createdAt.UTC().Format(timeLayout),
		nullString(op.UserID.String()),
	)
	if err != nil {
		return 0, fmt.Errorf("insert operation: %w", err)
	}
	return res.LastInsertId()
}

const operationColumns = `id, type, status, name, quantity, site, destination, batch_number, date, created_at, user_id`

// ListOperations returns every operation, newest first.
func (s *Store) ListOperations(ctx context.Context) ([]models.Operation, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+operationColumns+" FROM operations ORDER BY created_at DESC, id DESC")
	if err != nil {
		return nil, fmt.Errorf("query operations: %w", err)
	}
	defer rows.Close()

	ops := []models.Operation{}
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	return ops, rows.Err()
}

// GetOperation returns the operation with id.
func (s *Store) GetOperation(ctx context.Context, id int64) (*models.Operation, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+operationColumns+" FROM operations WHERE id = ?", id)
	op, err := scanOperation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &op, nil
}

// Receive records receipt of expedition operationID by userID. The
// expedition is marked completed and a RECEPTION operation is created for
// the receiving user. A second call for the same expedition returns
// ErrAlreadyReceived.
func (s *Store) Receive(ctx context.Context, operationID int64, userID string) (*Reception, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, "SELECT 1 FROM receptions WHERE operation_id = ?", operationID).Scan(&exists)
	if err == nil {
		return nil, ErrAlreadyReceived
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("query reception: %w", err)
	}

	exp, err := scanOperation(tx.QueryRowContext(ctx,
		"SELECT "+operationColumns+" FROM operations WHERE id = ?", operationID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if exp.Type != models.OperationExpedition || exp.Status != models.StatusInTransit {
		return nil, ErrNotReceivable
	}

	now := time.Now().UTC()
	record := models.Operation{
		Type:        models.OperationReception,
		Status:      models.StatusCompleted,
		Name:        exp.Name,
		Quantity:    exp.Quantity,
		Site:        exp.Destination,
		Destination: exp.Destination,
		Batch:       exp.Batch,
		Date:        models.Timestamp{Time: now},
		CreatedAt:   models.Timestamp{Time: now},
		UserID:      models.FlexString(userID),
	}
	recordID, err := insertOperation(ctx, tx, &record)
	if err != nil {
		return nil, err
	}
	record.ID = models.FlexInt(recordID)

	rec := &Reception{
		ID:          uuid.NewString(),
		OperationID: operationID,
		UserID:      userID,
		ReceivedAt:  now,
		Record:      record,
	}
	_, err = tx.ExecContext(ctx,
		"INSERT INTO receptions (id, operation_id, record_id, user_id, received_at) VALUES (?, ?, ?, ?, ?)",
		rec.ID, rec.OperationID, recordID, rec.UserID, now.Format(timeLayout),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrAlreadyReceived
		}
		return nil, fmt.Errorf("insert reception: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE operations SET status = ? WHERE id = ?", models.StatusCompleted, operationID); err != nil {
		return nil, fmt.Errorf("update expedition: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit reception: %w", err)
	}
	return rec, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOperation(row scanner) (models.Operation, error) {
	var (
		op                          models.Operation
		id                          int64
		typ                         string
		quantity                    sql.NullInt64
		batch, date, created, owner sql.NullString
	)
	err := row.Scan(&id, &typ, &op.Status, &op.Name, &quantity, &op.Site, &op.Destination,
		&batch, &date, &created, &owner)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return op, err
		}
		return op, fmt.Errorf("scan operation: %w", err)
	}

	op.ID = models.FlexInt(id)
	op.Type = models.OperationType(typ)
	if quantity.Valid {
		op.Quantity = models.FlexInt(quantity.Int64)
	}
	if batch.Valid {
		op.Batch = &models.Batch{BatchNumber: flexFromText(batch.String)}
	}
	if date.Valid {
		op.Date = models.Timestamp{Time: parseTimestamp(date.String)}
	}
	if created.Valid {
		op.CreatedAt = models.Timestamp{Time: parseTimestamp(created.String)}
	}
	if owner.Valid {
		op.UserID = models.FlexString(owner.String)
	}
	return op, nil
}

// flexFromText keeps numeric batch numbers numeric on the wire.
func flexFromText(s string) models.Flex {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return models.FlexInt(n)
	}
	return models.FlexString(s)
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullFlexInt(f models.Flex) any {
	if !f.Valid() {
		return nil
	}
	n, err := strconv.ParseInt(f.String(), 10, 64)
	if err != nil {
		return nil
	}
	return n
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(timeLayout)
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// parseTimestamp parses a timestamp string from SQLite in various formats.
func parseTimestamp(s string) time.Time {
	formats := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05.999999999-07:00",
		"2006-01-02 15:04:05",
		"2006-01-02",
	}
	for _, f := range formats {
		if t, err := time.Parse(f, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
