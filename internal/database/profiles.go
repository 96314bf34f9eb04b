package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"saunafreunde/internal/models"
)

const profileColumns = `id, username, name, email, primary_sauna, avatar_url, nickname, phone, motto,
	qualifications, awards, aufguss_count, work_hours, short_notice_cancellations, is_admin,
	show_in_member_list, permissions, telegram_chat_id, last_profile_update,
	last_aufguss_share_timestamp, created_at`

func scanProfile(row rowScanner) (*models.Profile, error) {
	var p models.Profile
	var quals, awards, perms string
	var lastUpdate, lastShare sql.NullTime
	if err := row.Scan(&p.ID, &p.Username, &p.Name, &p.Email, &p.PrimarySauna, &p.AvatarURL,
		&p.Nickname, &p.Phone, &p.Motto, &quals, &awards, &p.AufgussCount, &p.WorkHours,
		&p.ShortNoticeCancellations, &p.IsAdmin, &p.ShowInMemberList, &perms, &p.TelegramChatID,
		&lastUpdate, &lastShare, &p.CreatedAt); err != nil {
		return nil, err
	}

	var err error
	if p.Qualifications, err = decodeStrings(quals); err != nil {
		return nil, fmt.Errorf("decode qualifications: %w", err)
	}
	if p.Awards, err = decodeStrings(awards); err != nil {
		return nil, fmt.Errorf("decode awards: %w", err)
	}
	if p.Permissions, err = decodeStrings(perms); err != nil {
		return nil, fmt.Errorf("decode permissions: %w", err)
	}
	p.LastProfileUpdate = timePtr(lastUpdate)
	p.LastAufgussShareTimestamp = timePtr(lastShare)
	return &p, nil
}

// CreateProfile stores a new member profile.
func (db *DB) CreateProfile(ctx context.Context, p *models.Profile) error {
	quals, err := encodeJSON(nonNil(p.Qualifications))
	if err != nil {
		return err
	}
	awards, err := encodeJSON(nonNil(p.Awards))
	if err != nil {
		return err
	}
	perms, err := encodeJSON(nonNil(p.Permissions))
	if err != nil {
		return err
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	p.CreatedAt = ts(p.CreatedAt)

	_, err = db.ExecContext(ctx, `
		INSERT INTO profiles (id, username, name, email, primary_sauna, avatar_url, nickname, phone,
			motto, qualifications, awards, is_admin, show_in_member_list, permissions,
			telegram_chat_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Username, p.Name, p.Email, p.PrimarySauna, p.AvatarURL, p.Nickname, p.Phone,
		p.Motto, quals, awards, p.IsAdmin, p.ShowInMemberList, perms, p.TelegramChatID, p.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			if strings.Contains(err.Error(), "username") {
				return ErrUsernameTaken
			}
			return ErrProfileExists
		}
		return fmt.Errorf("insert profile: %w", err)
	}
	return nil
}

// GetProfile returns a profile by id.
func (db *DB) GetProfile(ctx context.Context, id string) (*models.Profile, error) {
	p, err := scanProfile(db.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProfileNotFound
	}
	return p, err
}

// UpdateProfile overwrites the editable fields and stamps last_profile_update.
// Counters, admin flag and permissions are not touched.
func (db *DB) UpdateProfile(ctx context.Context, p *models.Profile, now time.Time) error {
	quals, err := encodeJSON(nonNil(p.Qualifications))
	if err != nil {
		return err
	}
	awards, err := encodeJSON(nonNil(p.Awards))
	if err != nil {
		return err
	}
	stamp := ts(now)

	res, err := db.ExecContext(ctx, `
		UPDATE profiles SET username = ?, name = ?, email = ?, primary_sauna = ?, avatar_url = ?,
			nickname = ?, phone = ?, motto = ?, qualifications = ?, awards = ?,
			show_in_member_list = ?, telegram_chat_id = ?, last_profile_update = ?
		WHERE id = ?`,
		p.Username, p.Name, p.Email, p.PrimarySauna, p.AvatarURL, p.Nickname, p.Phone, p.Motto,
		quals, awards, p.ShowInMemberList, p.TelegramChatID, stamp, p.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrUsernameTaken
		}
		return fmt.Errorf("update profile: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrProfileNotFound
	}
	p.LastProfileUpdate = &stamp
	return nil
}

// ListMembers returns profiles shown in the member list, ordered by name.
func (db *DB) ListMembers(ctx context.Context) ([]models.Profile, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+profileColumns+` FROM profiles
		WHERE show_in_member_list = 1 ORDER BY name COLLATE NOCASE, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	members := make([]models.Profile, 0)
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		members = append(members, *p)
	}
	return members, rows.Err()
}

// SetPermissions replaces the admin flag and permission list of a profile.
func (db *DB) SetPermissions(ctx context.Context, id string, isAdmin bool, permissions []string) error {
	perms, err := encodeJSON(nonNil(permissions))
	if err != nil {
		return err
	}
	res, err := db.ExecContext(ctx, `UPDATE profiles SET is_admin = ?, permissions = ? WHERE id = ?`, isAdmin, perms, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrProfileNotFound
	}
	return nil
}

// takeShareSlot stamps the share timestamp if the cooldown has passed.
func takeShareSlot(ctx context.Context, tx *sql.Tx, userID string, now time.Time, cooldown time.Duration) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE profiles SET last_aufguss_share_timestamp = ?
		WHERE id = ? AND (last_aufguss_share_timestamp IS NULL OR last_aufguss_share_timestamp <= ?)`,
		ts(now), userID, ts(now.Add(-cooldown)))
	if err != nil {
		return fmt.Errorf("stamp share: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 1 {
		return nil
	}

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM profiles WHERE id = ?`, userID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrProfileNotFound
	}
	if err != nil {
		return err
	}
	return ErrShareCooldown
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
