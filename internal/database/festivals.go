package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"saunafreunde/internal/models"
)

const festivalColumns = `id, name, description, start_date, end_date, location`

func scanFestival(row rowScanner) (*models.Festival, error) {
	var f models.Festival
	if err := row.Scan(&f.ID, &f.Name, &f.Description, &f.StartDate, &f.EndDate, &f.Location); err != nil {
		return nil, err
	}
	return &f, nil
}

func (db *DB) CreateFestival(ctx context.Context, f *models.Festival) error {
	f.StartDate = ts(f.StartDate)
	f.EndDate = ts(f.EndDate)
	res, err := db.ExecContext(ctx, `
		INSERT INTO festivals (name, description, start_date, end_date, location) VALUES (?, ?, ?, ?, ?)`,
		f.Name, f.Description, f.StartDate, f.EndDate, f.Location)
	if err != nil {
		return fmt.Errorf("insert festival: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	f.ID = id
	return nil
}

func (db *DB) GetFestival(ctx context.Context, id int64) (*models.Festival, error) {
	f, err := scanFestival(db.QueryRowContext(ctx, `SELECT `+festivalColumns+` FROM festivals WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrFestivalNotFound
	}
	return f, err
}

// ListFestivals returns all festivals ordered by start date.
func (db *DB) ListFestivals(ctx context.Context) ([]models.Festival, error) {
	return db.queryFestivals(ctx, `SELECT `+festivalColumns+` FROM festivals ORDER BY start_date, id`)
}

func (db *DB) queryFestivals(ctx context.Context, query string, args ...interface{}) ([]models.Festival, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]models.Festival, 0)
	for rows.Next() {
		f, err := scanFestival(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *f)
	}
	return out, rows.Err()
}

func (db *DB) DeleteFestival(ctx context.Context, id int64) error {
	res, err := db.ExecContext(ctx, `DELETE FROM festivals WHERE id = ?`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrFestivalNotFound
	}
	return nil
}
