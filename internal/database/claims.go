package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"saunafreunde/internal/models"
	"saunafreunde/internal/schedule"
)

const claimColumns = `c.id, c.sauna_name, c.start_time, c.end_time, c.claimed_by, c.aufguss_type,
	c.reminder_sent, c.tallied, c.created_at,
	COALESCE(p.name, ''), COALESCE(p.username, ''), COALESCE(p.avatar_url, '')`

const claimFrom = ` FROM aufguss_claims c LEFT JOIN profiles p ON p.id = c.claimed_by`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanClaim(row rowScanner) (*models.AufgussClaim, error) {
	var c models.AufgussClaim
	var name, username, avatar string
	if err := row.Scan(&c.ID, &c.SaunaName, &c.StartTime, &c.EndTime, &c.ClaimedBy, &c.AufgussType,
		&c.ReminderSent, &c.Tallied, &c.CreatedAt, &name, &username, &avatar); err != nil {
		return nil, err
	}
	if name != "" {
		c.Profile = &models.ProfileFragment{
			ID:        c.ClaimedBy,
			Name:      name,
			Username:  username,
			AvatarURL: models.AvatarURLFor(name, avatar),
		}
	}
	return &c, nil
}

func (db *DB) queryClaims(ctx context.Context, query string, args ...interface{}) ([]models.AufgussClaim, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	claims := make([]models.AufgussClaim, 0)
	for rows.Next() {
		c, err := scanClaim(rows)
		if err != nil {
			return nil, err
		}
		claims = append(claims, *c)
	}
	return claims, rows.Err()
}

// CreateClaim inserts the claim unless its (sauna, start) is already taken.
// A lost race returns ErrSlotTaken.
func (db *DB) CreateClaim(ctx context.Context, c *models.AufgussClaim) error {
	c.StartTime = ts(c.StartTime)
	c.EndTime = ts(c.EndTime)
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	c.CreatedAt = ts(c.CreatedAt)

	res, err := db.ExecContext(ctx, `
		INSERT INTO aufguss_claims (sauna_name, start_time, end_time, claimed_by, aufguss_type, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(sauna_name, start_time) DO NOTHING`,
		c.SaunaName, c.StartTime, c.EndTime, c.ClaimedBy, c.AufgussType, c.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrSlotTaken
		}
		if isForeignKeyViolation(err) {
			return ErrProfileNotFound
		}
		return fmt.Errorf("insert claim: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrSlotTaken
	}

	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	c.ID = id
	return nil
}

// GetClaim returns a claim with its claimant profile.
func (db *DB) GetClaim(ctx context.Context, id int64) (*models.AufgussClaim, error) {
	row := db.QueryRowContext(ctx, `SELECT `+claimColumns+claimFrom+` WHERE c.id = ?`, id)
	c, err := scanClaim(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrClaimNotFound
	}
	return c, err
}

// ClaimsBetween returns claims starting in [from, to), ordered by start and sauna.
func (db *DB) ClaimsBetween(ctx context.Context, from, to time.Time) ([]models.AufgussClaim, error) {
	return db.queryClaims(ctx, `SELECT `+claimColumns+claimFrom+`
		WHERE c.start_time >= ? AND c.start_time < ?
		ORDER BY c.start_time, c.sauna_name, c.id`, ts(from), ts(to))
}

// ClaimsByUser returns the user's claims starting at or after from.
func (db *DB) ClaimsByUser(ctx context.Context, userID string, from time.Time) ([]models.AufgussClaim, error) {
	return db.queryClaims(ctx, `SELECT `+claimColumns+claimFrom+`
		WHERE c.claimed_by = ? AND c.start_time >= ?
		ORDER BY c.start_time`, userID, ts(from))
}

// CancelClaim deletes the claim on behalf of userID. The claimant check, the delete and the
// short-notice penalty happen in one transaction. It reports whether the penalty was applied.
func (db *DB) CancelClaim(ctx context.Context, id int64, userID string, now time.Time, window time.Duration) (*models.AufgussClaim, bool, error) {
	var claim *models.AufgussClaim
	shortNotice := false

	err := db.withTx(ctx, func(tx *sql.Tx) error {
		c, err := scanClaim(tx.QueryRowContext(ctx, `SELECT `+claimColumns+claimFrom+` WHERE c.id = ?`, id))
		if errors.Is(err, sql.ErrNoRows) {
			return ErrClaimNotFound
		}
		if err != nil {
			return fmt.Errorf("load claim: %w", err)
		}
		if c.ClaimedBy != userID {
			return ErrNotClaimant
		}
		if !c.StartTime.After(now) {
			return ErrClaimStarted
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM aufguss_claims WHERE id = ?`, id); err != nil {
			return fmt.Errorf("delete claim: %w", err)
		}

		if schedule.IsShortNotice(c.StartTime, now, window) {
			if _, err := tx.ExecContext(ctx, `
				UPDATE profiles SET short_notice_cancellations = short_notice_cancellations + 1
				WHERE id = ?`, userID); err != nil {
				return fmt.Errorf("record short notice: %w", err)
			}
			shortNotice = true
		}
		claim = c
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return claim, shortNotice, nil
}

// UpcomingUnreminded returns claims starting in (now, now+within] without a sent reminder.
func (db *DB) UpcomingUnreminded(ctx context.Context, now time.Time, within time.Duration) ([]models.AufgussClaim, error) {
	return db.queryClaims(ctx, `SELECT `+claimColumns+claimFrom+`
		WHERE c.reminder_sent = 0 AND c.start_time > ? AND c.start_time <= ?
		ORDER BY c.start_time`, ts(now), ts(now.Add(within)))
}

// MarkReminderSent flags the claim so it is not reminded twice.
func (db *DB) MarkReminderSent(ctx context.Context, id int64) error {
	_, err := db.ExecContext(ctx, `UPDATE aufguss_claims SET reminder_sent = 1 WHERE id = ?`, id)
	return err
}

// TallyFinished credits every finished, untallied claim to its claimant once.
// It returns the number of claims credited.
func (db *DB) TallyFinished(ctx context.Context, now time.Time) (int, error) {
	credited := 0
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			SELECT id, claimed_by, start_time, end_time FROM aufguss_claims
			WHERE tallied = 0 AND end_time <= ?`, ts(now))
		if err != nil {
			return err
		}

		type finished struct {
			id     int64
			userID string
			hours  float64
		}
		var done []finished
		for rows.Next() {
			var f finished
			var start, end time.Time
			if err := rows.Scan(&f.id, &f.userID, &start, &end); err != nil {
				rows.Close()
				return err
			}
			f.hours = end.Sub(start).Hours()
			done = append(done, f)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return err
		}
		rows.Close()

		for _, f := range done {
			if _, err := tx.ExecContext(ctx, `
				UPDATE profiles SET aufguss_count = aufguss_count + 1, work_hours = work_hours + ?
				WHERE id = ?`, f.hours, f.userID); err != nil {
				return fmt.Errorf("credit %s: %w", f.userID, err)
			}
			if _, err := tx.ExecContext(ctx, `UPDATE aufguss_claims SET tallied = 1 WHERE id = ?`, f.id); err != nil {
				return fmt.Errorf("mark tallied %d: %w", f.id, err)
			}
		}
		credited = len(done)
		return nil
	})
	return credited, err
}

// DeleteClaimsBefore removes claims that started before cutoff.
func (db *DB) DeleteClaimsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := db.ExecContext(ctx, `DELETE FROM aufguss_claims WHERE start_time < ? AND tallied = 1`, ts(cutoff))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
