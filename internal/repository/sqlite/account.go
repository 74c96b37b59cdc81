package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/rs/xid"
	sqlite3 "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/sakif/referral-rewards/internal/apperror"
	"github.com/sakif/referral-rewards/internal/model"
	"github.com/sakif/referral-rewards/internal/repository"
)

// compile-time check that *DB implements repository.AccountRepository
var _ repository.AccountRepository = (*DB)(nil)

// isUniqueViolation reports whether err is a SQLite UNIQUE-constraint
// failure on the named column (e.g. "accounts.email").
//
// DRIVER-ERROR TRANSLATION LIVES HERE AND NOWHERE ELSE:
// The layers above this package branch on typed errors (apperror kinds and
// the repository sentinels). The only place allowed to know what a SQLite
// constraint error looks like is this function. SQLite reports which
// constraint fired via the error message ("UNIQUE constraint failed:
// accounts.email"), so after matching the code we match the column.
func isUniqueViolation(err error, column string) bool {
	var serr *sqlite3.Error
	if !errors.As(err, &serr) {
		return false
	}
	if serr.Code() != sqlite3lib.SQLITE_CONSTRAINT_UNIQUE {
		return false
	}
	return strings.Contains(serr.Error(), column)
}

// Create inserts a new account row.
//
// The UNIQUE constraint on email is the authoritative duplicate signal — no
// pre-read, no check-then-insert race. A constraint violation comes back as
// apperror.ErrDuplicateEmail.
//
// Callers may pre-assign the ID (registration does, because a redemption may
// reference the new account before the row exists); otherwise one is
// generated here.
func (db *DB) Create(ctx context.Context, account *model.Account) error {
	if account.ID == "" {
		account.ID = xid.New().String()
	}
	now := time.Now().UTC()
	account.CreatedAt = now
	account.UpdatedAt = now

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO accounts (id, email, secret_hash, referral_code, referral_count,
		                       credit_balance, version, created_at, updated_at)
		 VALUES (?, ?, ?, NULL, ?, ?, 0, ?, ?)`,
		account.ID,
		account.Email,
		account.SecretHash,
		account.ReferralCount,
		account.CreditBalance,
		account.CreatedAt,
		account.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, "accounts.email") {
			return apperror.DuplicateEmail(account.Email)
		}
		return apperror.Persistence("insert account", err)
	}

	return nil
}

// accountColumns is the SELECT list every account scan uses, in scanAccount's
// order.
const accountColumns = `id, email, secret_hash, referral_code, referral_count,
	credit_balance, version, created_at, updated_at`

// scanAccount reads one row into an Account, mapping NULL referral_code
// to the empty string.
func scanAccount(row *sql.Row) (*model.Account, error) {
	var a model.Account
	var code sql.NullString

	err := row.Scan(
		&a.ID,
		&a.Email,
		&a.SecretHash,
		&code,
		&a.ReferralCount,
		&a.CreditBalance,
		&a.Version,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.ReferralCode = code.String
	return &a, nil
}

// GetByID retrieves an account by its internal ID.
func (db *DB) GetByID(ctx context.Context, id string) (*model.Account, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id)

	account, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.UnknownAccount(id)
		}
		return nil, apperror.Persistence("get account by id", err)
	}
	return account, nil
}

// GetByEmail retrieves an account by its normalized email.
func (db *DB) GetByEmail(ctx context.Context, email string) (*model.Account, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE email = ?`, email)

	account, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.UnknownEmail(email)
		}
		return nil, apperror.Persistence("get account by email", err)
	}
	return account, nil
}

// GetByReferralCode retrieves the account owning the given referral code.
func (db *DB) GetByReferralCode(ctx context.Context, code string) (*model.Account, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE referral_code = ?`, code)

	account, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.UnknownCode(code)
		}
		return nil, apperror.Persistence("get account by referral code", err)
	}
	return account, nil
}

// ClaimReferralCode writes a referral code onto an account, but only while
// its code column is still NULL.
//
// The "referral_code IS NULL" predicate makes the write itself the issuance
// guard: two concurrent claims for the same account both pass any
// pre-checks, but only the first UPDATE matches a row. The loser sees zero
// rows affected and gets ErrAlreadyIssued, without the code ever changing.
func (db *DB) ClaimReferralCode(ctx context.Context, accountID, code string) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE accounts SET referral_code = ?, updated_at = ?
		 WHERE id = ? AND referral_code IS NULL`,
		code, time.Now().UTC(), accountID,
	)
	if err != nil {
		// The UNIQUE constraint on referral_code means another account
		// already owns this exact code value — generator collision, the
		// ledger retries with a fresh code.
		if isUniqueViolation(err, "accounts.referral_code") {
			return repository.ErrCodeTaken
		}
		return apperror.Persistence("claim referral code", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return apperror.Persistence("claim referral code", err)
	}
	if affected == 1 {
		return nil
	}

	// Zero rows matched: either the account is gone or the code is already
	// set. One cheap read tells us which.
	var existing sql.NullString
	err = db.conn.QueryRowContext(ctx,
		`SELECT referral_code FROM accounts WHERE id = ?`, accountID,
	).Scan(&existing)
	if errors.Is(err, sql.ErrNoRows) {
		return apperror.UnknownAccount(accountID)
	}
	if err != nil {
		return apperror.Persistence("claim referral code", err)
	}
	return apperror.AlreadyIssued(accountID)
}

// ApplyRedemption commits one redemption against a referrer as a single
// transaction: counter and credit move to their new values, the version
// bumps, and the redeemer is appended to the referred list.
//
// The UPDATE's "AND version = ?" clause is the compare-and-swap. If another
// redemption committed since the caller read its snapshot, zero rows match,
// nothing is written, and ErrVersionConflict tells the ledger to re-read and
// recompute. Count and list can never drift apart because they only ever
// change together inside this transaction.
func (db *DB) ApplyRedemption(ctx context.Context, upd repository.RedemptionUpdate) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return apperror.Persistence("apply redemption", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE accounts
		 SET referral_count = ?, credit_balance = ?, version = version + 1, updated_at = ?
		 WHERE id = ? AND version = ?`,
		upd.NewCount, upd.NewCredit, time.Now().UTC(), upd.ReferrerID, upd.Version,
	)
	if err != nil {
		return apperror.Persistence("apply redemption", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return apperror.Persistence("apply redemption", err)
	}
	if affected == 0 {
		return repository.ErrVersionConflict
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO account_referrals (referrer_id, account_id, created_at)
		 VALUES (?, ?, ?)`,
		upd.ReferrerID, upd.NewAccountID, time.Now().UTC(),
	)
	if err != nil {
		return apperror.Persistence("apply redemption", err)
	}

	if err := tx.Commit(); err != nil {
		return apperror.Persistence("apply redemption", err)
	}
	return nil
}

// ReferredAccountIDs returns the IDs of accounts that redeemed the given
// account's code, in redemption order.
func (db *DB) ReferredAccountIDs(ctx context.Context, accountID string) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT account_id FROM account_referrals
		 WHERE referrer_id = ? ORDER BY seq`,
		accountID,
	)
	if err != nil {
		return nil, apperror.Persistence("list referred accounts", err)
	}
	defer rows.Close()

	// Empty slice, not nil — the profile serializes this as [] rather than null.
	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, apperror.Persistence("list referred accounts", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, apperror.Persistence("list referred accounts", err)
	}
	return ids, nil
}

// forceVersion is a test hook: it rewrites an account's version directly so
// tests can fabricate a stale snapshot without racing real writers.
func (db *DB) forceVersion(ctx context.Context, accountID string, version int64) error {
	_, err := db.conn.ExecContext(ctx,
		`UPDATE accounts SET version = ? WHERE id = ?`, version, accountID)
	return err
}
