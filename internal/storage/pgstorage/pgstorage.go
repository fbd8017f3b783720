package pgstorage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/maridaapp/settlement/internal/domain/ledger"
	"github.com/maridaapp/settlement/internal/domain/users"
	"github.com/maridaapp/settlement/internal/domain/withdrawals"
	"github.com/maridaapp/settlement/internal/storage"
	"github.com/maridaapp/settlement/internal/storage/dbmodels"
	"github.com/shopspring/decimal"

	// Postgres driver.
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

var _ storage.Storage = (*Storage)(nil)

type Storage struct {
	db *sql.DB
}

type Config struct {
	maxOpenConns    int
	maxIdleConns    int
	connMaxIdleTime time.Duration
	connMaxLifetime time.Duration
}

type Option func(s *Config)

func WithMaxOpenConns(conns int) Option {
	return func(c *Config) {
		c.maxOpenConns = conns
	}
}

func WithMaxIdleConns(conns int) Option {
	return func(c *Config) {
		c.maxIdleConns = conns
	}
}

func WithConnMaxIdleTime(idleTime time.Duration) Option {
	return func(c *Config) {
		c.connMaxIdleTime = idleTime
	}
}

func WithConnMaxLifetime(lifetime time.Duration) Option {
	return func(c *Config) {
		c.connMaxLifetime = lifetime
	}
}

func NewStorage(connStr string, opts ...Option) (*Storage, error) {
	cfg := &Config{
		maxOpenConns:    10,
		maxIdleConns:    5,
		connMaxIdleTime: 180 * time.Second,
		connMaxLifetime: 3600 * time.Second,
	}

	for _, opt := range opts {
		opt(cfg)
	}

	db, err := sql.Open("pgx", connStr)
	if err != nil {
		return nil, fmt.Errorf("sql.Open: %w", err)
	}

	db.SetMaxOpenConns(cfg.maxOpenConns)
	db.SetMaxIdleConns(cfg.maxIdleConns)
	db.SetConnMaxIdleTime(cfg.connMaxIdleTime)
	db.SetConnMaxLifetime(cfg.connMaxLifetime)

	return &Storage{
		db: db,
	}, nil
}

func (s *Storage) Bootstrap(ctx context.Context) error {
	provider, err := goose.NewProvider(
		goose.DialectPostgres,
		s.db,
		os.DirFS("internal/storage/pgstorage/migrations"),
	)
	if err != nil {
		return fmt.Errorf("goose.NewProvider: %w", err)
	}

	_, err = provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("provider.Up: %w", err)
	}

	return nil
}

func (s *Storage) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("db.Close: %w", err)
	}

	return nil
}

// isRetryableError checks if error is retryable.
func isRetryableError(err error) bool {
	// Connection refused error
	if errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgerrcode.IsConnectionException(pgErr.Code) {
		return true
	}

	return false
}

// WithRetry retries operations in case of retryable errors.
func WithRetry(operation func() error) error {
	// Retry count
	retryCount := 3

	// Initial retry wait time
	var retryWaitTime time.Duration

	// Define the interval between retries
	retryWaitInterval := 2

	var err error

	for i := 0; i < retryCount; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if isRetryableError(err) {
			retryWaitTime = time.Duration((i*retryWaitInterval + 1)) * time.Second // 1s, 3s, 5s, etc.

			time.Sleep(retryWaitTime)
		} else {
			return fmt.Errorf("%w", err)
		}
	}

	return fmt.Errorf("retry attempts exceeded: %w", err)
}

func (s *Storage) Ping(ctx context.Context) error {
	err := WithRetry(func() error {
		if err := s.db.PingContext(ctx); err != nil {
			return fmt.Errorf("db.PingContext: %w", err)
		}

		return nil
	})
	if err != nil {
		return err
	}

	return nil
}

func (s *Storage) CreateUser(ctx context.Context, usr *users.User) error {
	err := WithRetry(func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("db.BeginTx: %w", err)
		}
		defer tx.Rollback() //nolint:errcheck

		createUsrQuery := `INSERT INTO users (login, email, password_hash) VALUES ($1, $2, $3)`

		if _, err := tx.ExecContext(ctx, createUsrQuery, usr.Login(), usr.Email(), usr.PasswordHash()); err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgerrcode.IsIntegrityConstraintViolation(pgErr.Code) {
				return storage.ErrUserAlreadyExists
			}

			return fmt.Errorf("tx.ExecContext: %w", err)
		}

		createAccountQuery := `INSERT INTO ledger_accounts (login) VALUES ($1)`

		if _, err := tx.ExecContext(ctx, createAccountQuery, usr.Login()); err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgerrcode.IsIntegrityConstraintViolation(pgErr.Code) {
				return storage.ErrAccountAlreadyExists
			}

			return fmt.Errorf("tx.ExecContext: %w", err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("tx.Commit: %w", err)
		}

		return nil
	})
	if err != nil {
		return err
	}

	return nil
}

func (s *Storage) GetUser(ctx context.Context, login string) (*users.User, error) {
	dbUser := new(dbmodels.User)

	err := WithRetry(func() error {
		query := `SELECT login, email, password_hash, paypal_email, binance_address, epay_account` +
			` FROM users WHERE login = $1`

		row := s.db.QueryRowContext(ctx, query, login)

		if err := row.Scan(
			&dbUser.Login, &dbUser.Email, &dbUser.PasswordHash,
			&dbUser.PayPalEmail, &dbUser.BinanceAddress, &dbUser.EpayAccount,
		); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return storage.ErrUserNotFound
			}

			return fmt.Errorf("db.QueryRowContext: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	user, err := users.NewUser(dbUser.Login, dbUser.Email, dbUser.PasswordHash, users.PaymentInfo{
		PayPalEmail:    dbUser.PayPalEmail.String,
		BinanceAddress: dbUser.BinanceAddress.String,
		EpayAccount:    dbUser.EpayAccount.String,
	})
	if err != nil {
		return nil, fmt.Errorf("users.NewUser: %w", err)
	}

	return user, nil
}

func (s *Storage) UpdateUserPaymentInfo(ctx context.Context, login string, info users.PaymentInfo) error {
	err := WithRetry(func() error {
		query := `UPDATE users SET paypal_email = NULLIF($1, ''), binance_address = NULLIF($2, ''),` +
			` epay_account = NULLIF($3, '') WHERE login = $4`

		result, err := s.db.ExecContext(ctx, query, info.PayPalEmail, info.BinanceAddress, info.EpayAccount, login)
		if err != nil {
			return fmt.Errorf("db.ExecContext: %w", err)
		}

		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("result.RowsAffected: %w", err)
		}

		if rows == 0 {
			return storage.ErrUserNotFound
		}

		return nil
	})
	if err != nil {
		return err
	}

	return nil
}

func (s *Storage) GetAccount(ctx context.Context, login string) (*ledger.Account, error) {
	dbAccount := new(dbmodels.LedgerAccount)

	err := WithRetry(func() error {
		query := `SELECT login, balance, reserved, withdrawn FROM ledger_accounts WHERE login = $1`

		row := s.db.QueryRowContext(ctx, query, login)
		if err := row.Scan(&dbAccount.Login, &dbAccount.Balance, &dbAccount.Reserved, &dbAccount.Withdrawn); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return storage.ErrAccountNotFound
			}

			return fmt.Errorf("db.QueryRowContext: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	account, err := ledger.NewAccount(dbAccount.Login, dbAccount.Balance, dbAccount.Reserved, dbAccount.Withdrawn)
	if err != nil {
		return nil, fmt.Errorf("ledger.NewAccount: %w", err)
	}

	return account, nil
}

func (s *Storage) Deposit(ctx context.Context, login string, amount decimal.Decimal) error {
	err := WithRetry(func() error {
		query := `UPDATE ledger_accounts SET balance = balance + $1 WHERE login = $2`

		result, err := s.db.ExecContext(ctx, query, amount, login)
		if err != nil {
			return fmt.Errorf("db.ExecContext: %w", err)
		}

		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("result.RowsAffected: %w", err)
		}

		if rows == 0 {
			return storage.ErrAccountNotFound
		}

		return nil
	})
	if err != nil {
		return err
	}

	return nil
}

func (s *Storage) Reserve(ctx context.Context, reservation *ledger.Reservation) error {
	err := WithRetry(func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("db.BeginTx: %w", err)
		}
		defer tx.Rollback() //nolint:errcheck

		// The availability check and the reserved increment are one
		// conditional update: concurrent reservations on the same account
		// cannot observe a read-then-write gap.
		reserveQuery := `UPDATE ledger_accounts SET reserved = reserved + $1` +
			` WHERE login = $2 AND balance - reserved >= $1`

		result, err := tx.ExecContext(ctx, reserveQuery, reservation.Amount(), reservation.UserLogin())
		if err != nil {
			return fmt.Errorf("tx.ExecContext: %w", err)
		}

		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("result.RowsAffected: %w", err)
		}

		if rows == 0 {
			var exists bool

			row := tx.QueryRowContext(ctx,
				`SELECT EXISTS (SELECT 1 FROM ledger_accounts WHERE login = $1)`, reservation.UserLogin())
			if err := row.Scan(&exists); err != nil {
				return fmt.Errorf("db.QueryRowContext: %w", err)
			}

			if !exists {
				return storage.ErrAccountNotFound
			}

			return storage.ErrInsufficientBalance
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO reservations (id, login, withdrawal_id, amount, status, created_at)`+
				` VALUES ($1, $2, $3, $4, $5, $6)`,
			reservation.ID(), reservation.UserLogin(), reservation.WithdrawalID(),
			reservation.Amount(), string(reservation.Status()), reservation.CreatedAt(),
		); err != nil {
			return fmt.Errorf("tx.ExecContext: %w", err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("tx.Commit: %w", err)
		}

		return nil
	})
	if err != nil {
		return err
	}

	return nil
}

func (s *Storage) CommitReservation(ctx context.Context, reservationID uuid.UUID) error {
	return s.settleReservation(ctx, reservationID, ledger.ReservationCommitted)
}

func (s *Storage) ReleaseReservation(ctx context.Context, reservationID uuid.UUID) error {
	return s.settleReservation(ctx, reservationID, ledger.ReservationReleased)
}

// settleReservation finalizes a held reservation: committed turns it into a
// permanent debit, released gives the earmark back. Both append one ledger
// entry. Settling to the same final state twice is a no-op.
func (s *Storage) settleReservation(ctx context.Context, reservationID uuid.UUID, to ledger.ReservationStatus) error {
	err := WithRetry(func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("db.BeginTx: %w", err)
		}
		defer tx.Rollback() //nolint:errcheck

		dbReservation := new(dbmodels.Reservation)

		row := tx.QueryRowContext(ctx,
			`SELECT id, login, withdrawal_id, amount, status FROM reservations WHERE id = $1 FOR UPDATE`,
			reservationID)

		if err := row.Scan(
			&dbReservation.ID, &dbReservation.Login, &dbReservation.WithdrawalID,
			&dbReservation.Amount, &dbReservation.Status,
		); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return storage.ErrReservationNotFound
			}

			return fmt.Errorf("db.QueryRowContext: %w", err)
		}

		if dbReservation.Status == string(to) {
			// Idempotent: already settled to the requested state.
			return nil
		}

		if dbReservation.Status != string(ledger.ReservationHeld) {
			return storage.ErrReservationConflict
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE reservations SET status = $1 WHERE id = $2`, string(to), reservationID,
		); err != nil {
			return fmt.Errorf("tx.ExecContext: %w", err)
		}

		entryAmount := dbReservation.Amount

		if to == ledger.ReservationCommitted {
			entryAmount = dbReservation.Amount.Neg()

			if _, err := tx.ExecContext(ctx,
				`UPDATE ledger_accounts SET balance = balance - $1, reserved = reserved - $1,`+
					` withdrawn = withdrawn + $1 WHERE login = $2`,
				dbReservation.Amount, dbReservation.Login,
			); err != nil {
				return fmt.Errorf("tx.ExecContext: %w", err)
			}
		} else {
			if _, err := tx.ExecContext(ctx,
				`UPDATE ledger_accounts SET reserved = reserved - $1 WHERE login = $2`,
				dbReservation.Amount, dbReservation.Login,
			); err != nil {
				return fmt.Errorf("tx.ExecContext: %w", err)
			}
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO ledger_entries (login, entry_type, amount, withdrawal_id, created_at)`+
				` VALUES ($1, $2, $3, $4, $5)`,
			dbReservation.Login, string(ledger.EntryWithdrawal), entryAmount,
			dbReservation.WithdrawalID, time.Now(),
		); err != nil {
			return fmt.Errorf("tx.ExecContext: %w", err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("tx.Commit: %w", err)
		}

		return nil
	})
	if err != nil {
		return err
	}

	return nil
}

func (s *Storage) GetReservationByWithdrawal(ctx context.Context, withdrawalID uuid.UUID) (*ledger.Reservation, error) {
	dbReservation := new(dbmodels.Reservation)

	err := WithRetry(func() error {
		query := `SELECT id, login, withdrawal_id, amount, status, created_at` +
			` FROM reservations WHERE withdrawal_id = $1`

		row := s.db.QueryRowContext(ctx, query, withdrawalID)

		if err := row.Scan(
			&dbReservation.ID, &dbReservation.Login, &dbReservation.WithdrawalID,
			&dbReservation.Amount, &dbReservation.Status, &dbReservation.CreatedAt,
		); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return storage.ErrReservationNotFound
			}

			return fmt.Errorf("db.QueryRowContext: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	id, err := uuid.Parse(dbReservation.ID)
	if err != nil {
		return nil, fmt.Errorf("uuid.Parse: %w", err)
	}

	wID, err := uuid.Parse(dbReservation.WithdrawalID)
	if err != nil {
		return nil, fmt.Errorf("uuid.Parse: %w", err)
	}

	reservation, err := ledger.NewReservation(
		id, dbReservation.Login, wID, dbReservation.Amount,
		ledger.ReservationStatus(dbReservation.Status), dbReservation.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("ledger.NewReservation: %w", err)
	}

	return reservation, nil
}

func (s *Storage) GetEntriesByLogin(ctx context.Context, login string) ([]*ledger.Entry, error) {
	dbEntries := make([]*dbmodels.LedgerEntry, 0)

	err := WithRetry(func() error {
		query := `SELECT login, entry_type, amount, withdrawal_id, created_at` +
			` FROM ledger_entries WHERE login = $1 ORDER BY created_at DESC`

		rows, err := s.db.QueryContext(ctx, query, login)
		if err != nil {
			return fmt.Errorf("db.QueryContext: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			dbEntry := new(dbmodels.LedgerEntry)

			if err := rows.Scan(
				&dbEntry.Login, &dbEntry.EntryType, &dbEntry.Amount, &dbEntry.WithdrawalID, &dbEntry.CreatedAt,
			); err != nil {
				return fmt.Errorf("rows.Scan: %w", err)
			}

			dbEntries = append(dbEntries, dbEntry)
		}

		return rows.Err()
	})
	if err != nil {
		return nil, err
	}

	entries := make([]*ledger.Entry, 0, len(dbEntries))

	for _, dbEntry := range dbEntries {
		wID, err := uuid.Parse(dbEntry.WithdrawalID)
		if err != nil {
			return nil, fmt.Errorf("uuid.Parse: %w", err)
		}

		entries = append(entries, ledger.NewEntry(
			dbEntry.Login, ledger.EntryType(dbEntry.EntryType), dbEntry.Amount, wID, dbEntry.CreatedAt,
		))
	}

	return entries, nil
}

func (s *Storage) CreateWithdrawal(ctx context.Context, withdrawal *withdrawals.Withdrawal) error {
	meta, err := marshalProviderMeta(withdrawal.ProviderMeta())
	if err != nil {
		return err
	}

	err = WithRetry(func() error {
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO withdrawals (id, login, amount, currency, method, status, provider_ref,`+
				` provider_meta, error_code, error_message, created_at, completed_at)`+
				` VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, NULLIF($9, ''), NULLIF($10, ''), $11, $12)`,
			withdrawal.ID(), withdrawal.UserLogin(), withdrawal.Amount(), withdrawal.Currency(),
			withdrawal.Method().String(), withdrawal.Status().String(), withdrawal.ProviderRef(),
			meta, withdrawal.ErrorCode(), withdrawal.ErrorMessage(),
			withdrawal.CreatedAt(), nullTime(withdrawal.CompletedAt()),
		); err != nil {
			return fmt.Errorf("db.ExecContext: %w", err)
		}

		return nil
	})
	if err != nil {
		return err
	}

	return nil
}

func (s *Storage) UpdateWithdrawal(ctx context.Context, withdrawal *withdrawals.Withdrawal) error {
	meta, err := marshalProviderMeta(withdrawal.ProviderMeta())
	if err != nil {
		return err
	}

	err = WithRetry(func() error {
		result, err := s.db.ExecContext(ctx,
			`UPDATE withdrawals SET status = $1, provider_ref = NULLIF($2, ''), provider_meta = $3,`+
				` error_code = NULLIF($4, ''), error_message = NULLIF($5, ''), completed_at = $6 WHERE id = $7`,
			withdrawal.Status().String(), withdrawal.ProviderRef(), meta,
			withdrawal.ErrorCode(), withdrawal.ErrorMessage(),
			nullTime(withdrawal.CompletedAt()), withdrawal.ID(),
		)
		if err != nil {
			return fmt.Errorf("db.ExecContext: %w", err)
		}

		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("result.RowsAffected: %w", err)
		}

		if rows == 0 {
			return storage.ErrWithdrawalNotFound
		}

		return nil
	})
	if err != nil {
		return err
	}

	return nil
}

func (s *Storage) TransitionWithdrawal(
	ctx context.Context, id uuid.UUID, from []withdrawals.Status, to withdrawals.Status,
) (*withdrawals.Withdrawal, error) {
	fromStatuses := make([]string, 0, len(from))
	for _, status := range from {
		fromStatuses = append(fromStatuses, status.String())
	}

	dbWithdrawal := new(dbmodels.Withdrawal)

	err := WithRetry(func() error {
		query := `UPDATE withdrawals SET status = $1,` +
			` completed_at = CASE WHEN $2 THEN COALESCE(completed_at, now()) ELSE completed_at END` +
			` WHERE id = $3 AND status = ANY($4)` +
			` RETURNING id, login, amount, currency, method, status, provider_ref, provider_meta,` +
			` error_code, error_message, created_at, completed_at`

		row := s.db.QueryRowContext(ctx, query, to.String(), to.Terminal(), id, pq.Array(fromStatuses))

		if err := scanWithdrawal(row, dbWithdrawal); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				var exists bool

				existsRow := s.db.QueryRowContext(ctx,
					`SELECT EXISTS (SELECT 1 FROM withdrawals WHERE id = $1)`, id)
				if err := existsRow.Scan(&exists); err != nil {
					return fmt.Errorf("db.QueryRowContext: %w", err)
				}

				if !exists {
					return storage.ErrWithdrawalNotFound
				}

				return storage.ErrWithdrawalConflict
			}

			return err
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return restoreWithdrawal(dbWithdrawal)
}

func (s *Storage) GetWithdrawal(ctx context.Context, id uuid.UUID) (*withdrawals.Withdrawal, error) {
	dbWithdrawal := new(dbmodels.Withdrawal)

	err := WithRetry(func() error {
		query := `SELECT id, login, amount, currency, method, status, provider_ref, provider_meta,` +
			` error_code, error_message, created_at, completed_at FROM withdrawals WHERE id = $1`

		row := s.db.QueryRowContext(ctx, query, id)

		if err := scanWithdrawal(row, dbWithdrawal); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return storage.ErrWithdrawalNotFound
			}

			return err
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return restoreWithdrawal(dbWithdrawal)
}

func (s *Storage) GetWithdrawalsByLogin(ctx context.Context, login string) ([]*withdrawals.Withdrawal, error) {
	query := `SELECT id, login, amount, currency, method, status, provider_ref, provider_meta,` +
		` error_code, error_message, created_at, completed_at FROM withdrawals` +
		` WHERE login = $1 ORDER BY created_at DESC`

	return s.queryWithdrawals(ctx, query, login)
}

func (s *Storage) GetWithdrawalsByStatus(
	ctx context.Context, statuses ...withdrawals.Status,
) ([]*withdrawals.Withdrawal, error) {
	statusStrings := make([]string, 0, len(statuses))
	for _, status := range statuses {
		statusStrings = append(statusStrings, status.String())
	}

	query := `SELECT id, login, amount, currency, method, status, provider_ref, provider_meta,` +
		` error_code, error_message, created_at, completed_at FROM withdrawals` +
		` WHERE status = ANY($1) ORDER BY created_at ASC`

	return s.queryWithdrawals(ctx, query, pq.Array(statusStrings))
}

func (s *Storage) queryWithdrawals(ctx context.Context, query string, args ...any) ([]*withdrawals.Withdrawal, error) {
	dbWithdrawals := make([]*dbmodels.Withdrawal, 0)

	err := WithRetry(func() error {
		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("db.QueryContext: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			dbWithdrawal := new(dbmodels.Withdrawal)

			if err := scanWithdrawal(rows, dbWithdrawal); err != nil {
				return err
			}

			dbWithdrawals = append(dbWithdrawals, dbWithdrawal)
		}

		return rows.Err()
	})
	if err != nil {
		return nil, err
	}

	result := make([]*withdrawals.Withdrawal, 0, len(dbWithdrawals))

	for _, dbWithdrawal := range dbWithdrawals {
		withdrawal, err := restoreWithdrawal(dbWithdrawal)
		if err != nil {
			return nil, err
		}

		result = append(result, withdrawal)
	}

	return result, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWithdrawal(row rowScanner, dbWithdrawal *dbmodels.Withdrawal) error {
	if err := row.Scan(
		&dbWithdrawal.ID, &dbWithdrawal.Login, &dbWithdrawal.Amount, &dbWithdrawal.Currency,
		&dbWithdrawal.Method, &dbWithdrawal.Status, &dbWithdrawal.ProviderRef, &dbWithdrawal.ProviderMeta,
		&dbWithdrawal.ErrorCode, &dbWithdrawal.ErrorMessage, &dbWithdrawal.CreatedAt, &dbWithdrawal.CompletedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return sql.ErrNoRows
		}

		return fmt.Errorf("rows.Scan: %w", err)
	}

	return nil
}

func restoreWithdrawal(dbWithdrawal *dbmodels.Withdrawal) (*withdrawals.Withdrawal, error) {
	id, err := uuid.Parse(dbWithdrawal.ID)
	if err != nil {
		return nil, fmt.Errorf("uuid.Parse: %w", err)
	}

	var meta map[string]string

	if len(dbWithdrawal.ProviderMeta) > 0 {
		if err := json.Unmarshal(dbWithdrawal.ProviderMeta, &meta); err != nil {
			return nil, fmt.Errorf("json.Unmarshal: %w", err)
		}
	}

	withdrawal, err := withdrawals.NewWithdrawal(
		id, dbWithdrawal.Login, dbWithdrawal.Amount, dbWithdrawal.Currency,
		withdrawals.Method(dbWithdrawal.Method), withdrawals.Status(dbWithdrawal.Status),
		dbWithdrawal.ProviderRef.String, meta,
		dbWithdrawal.ErrorCode.String, dbWithdrawal.ErrorMessage.String,
		dbWithdrawal.CreatedAt, dbWithdrawal.CompletedAt.Time,
	)
	if err != nil {
		return nil, fmt.Errorf("withdrawals.NewWithdrawal: %w", err)
	}

	return withdrawal, nil
}

func marshalProviderMeta(meta map[string]string) ([]byte, error) {
	if len(meta) == 0 {
		return nil, nil
	}

	data, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("json.Marshal: %w", err)
	}

	return data, nil
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
