package finance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru"
)

// PostgresDirectory reads the finance subsystem's tables:
//
//	users(id, name)
//	user_chits(user_id, batch_id, batch_name, value, term, status, bid_won, bid_month, bid_amount)
//	pf_live(user_id PRIMARY KEY, name, chit_value, month_loss, month_in_hand, monthly_payment, running_month)
//
// User lookups are cached; bidders are resolved on every bid.
type PostgresDirectory struct {
	db    *sql.DB
	users *lru.Cache
}

func NewPostgresDirectory(db *sql.DB, cacheSize int) (*PostgresDirectory, error) {
	cache, err := lru.New(cacheSize)
	if err != nil {
		return nil, fmt.Errorf("user cache: %w", err)
	}
	return &PostgresDirectory{db: db, users: cache}, nil
}

func (d *PostgresDirectory) GetUser(ctx context.Context, id string) (User, error) {
	if v, ok := d.users.Get(id); ok {
		return v.(User), nil
	}

	var u User
	err := d.db.QueryRowContext(ctx, `SELECT id, name FROM users WHERE id = $1`, id).Scan(&u.ID, &u.Name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, fmt.Errorf("get user %s: %w", id, err)
	}
	d.users.Add(id, u)
	return u, nil
}

func (d *PostgresDirectory) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT id, name FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	out := make([]User, 0)
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Name); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (d *PostgresDirectory) CanBid(ctx context.Context, userID, batchID string) (bool, error) {
	const q = `SELECT EXISTS (
	             SELECT 1 FROM user_chits
	              WHERE user_id = $1 AND batch_id = $2
	                AND status = 'Active' AND NOT bid_won)`
	var ok bool
	if err := d.db.QueryRowContext(ctx, q, userID, batchID).Scan(&ok); err != nil {
		return false, fmt.Errorf("can bid %s/%s: %w", userID, batchID, err)
	}
	return ok, nil
}

func (d *PostgresDirectory) RecordWin(ctx context.Context, userID, batchID string, row MonthRow) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	const markWon = `
	  UPDATE user_chits
	     SET bid_won = TRUE, bid_month = $3, bid_amount = $4
	   WHERE user_id = $1 AND batch_id = $2 AND status = 'Active'`
	if _, err = tx.ExecContext(ctx, markWon, userID, batchID, row.RunningMonth, row.MonthInHand); err != nil {
		return fmt.Errorf("mark chit won: %w", err)
	}

	const upsertLive = `
	  INSERT INTO pf_live (user_id, name, chit_value, month_loss,
	                       month_in_hand, monthly_payment, running_month)
	       VALUES ($1, $2, $3, $4, $5, $6, $7)
	  ON CONFLICT (user_id) DO UPDATE
	        SET name            = EXCLUDED.name,
	            chit_value      = EXCLUDED.chit_value,
	            month_loss      = EXCLUDED.month_loss,
	            month_in_hand   = EXCLUDED.month_in_hand,
	            monthly_payment = EXCLUDED.monthly_payment,
	            running_month   = EXCLUDED.running_month`
	if _, err = tx.ExecContext(ctx, upsertLive, userID, row.Name, row.ChitValue, row.MonthLoss,
		row.MonthInHand, row.MonthlyPayment, row.RunningMonth); err != nil {
		return fmt.Errorf("upsert live row: %w", err)
	}
	return tx.Commit()
}

func (d *PostgresDirectory) LiveRow(ctx context.Context, userID string) (MonthRow, bool, error) {
	const q = `SELECT name, chit_value, month_loss, month_in_hand, monthly_payment, running_month
	             FROM pf_live WHERE user_id = $1`
	var r MonthRow
	err := d.db.QueryRowContext(ctx, q, userID).Scan(&r.Name, &r.ChitValue, &r.MonthLoss,
		&r.MonthInHand, &r.MonthlyPayment, &r.RunningMonth)
	if errors.Is(err, sql.ErrNoRows) {
		return MonthRow{}, false, nil
	}
	if err != nil {
		return MonthRow{}, false, fmt.Errorf("live row %s: %w", userID, err)
	}
	return r, true, nil
}
