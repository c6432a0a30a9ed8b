package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/train-ticket-booking/internal/model"
)

// StationRepo provides CRUD operations for stations.
type StationRepo struct {
	db *sql.DB
}

// NewStationRepo returns a new StationRepo bound to the given database.
func NewStationRepo(db *sql.DB) *StationRepo { return &StationRepo{db: db} }

const stationSelect = `SELECT id, name, code, city, address, created_at, updated_at FROM stations`

func scanStation(row rowScanner, s *model.Station) error {
	var addr sql.NullString
	if err := row.Scan(&s.ID, &s.Name, &s.Code, &s.City, &addr, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return err
	}
	if addr.Valid {
		a := addr.String
		s.Address = &a
	}
	return nil
}

// List returns all stations ordered by name.
func (r *StationRepo) List(ctx context.Context) ([]model.Station, error) {
	rows, err := r.db.QueryContext(ctx, stationSelect+` ORDER BY name ASC`)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()
	out := []model.Station{}
	for rows.Next() {
		var s model.Station
		if err := scanStation(rows, &s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// GetByID fetches a single station.
func (r *StationRepo) GetByID(ctx context.Context, id uint64) (model.Station, error) {
	var s model.Station
	err := scanStation(r.db.QueryRowContext(ctx, stationSelect+` WHERE id = ?`, id), &s)
	if errors.Is(err, sql.ErrNoRows) {
		return s, ErrStationNotFound
	}
	return s, classify(err)
}

// Create inserts a station and reads back the stored row.  A taken code
// yields ErrDuplicate.
func (r *StationRepo) Create(ctx context.Context, s *model.Station) error {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO stations (name, code, city, address) VALUES (?, ?, ?, ?)`,
		s.Name, s.Code, s.City, s.Address)
	if err != nil {
		return classify(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	stored, err := r.GetByID(ctx, uint64(id))
	if err != nil {
		return err
	}
	*s = stored
	return nil
}

// Update overwrites a station's fields and reads the row back into s.
func (r *StationRepo) Update(ctx context.Context, s *model.Station) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE stations SET name = ?, code = ?, city = ?, address = ?, updated_at = NOW() WHERE id = ?`,
		s.Name, s.Code, s.City, s.Address, s.ID); err != nil {
		return classify(err)
	}
	// a missing row surfaces here as ErrStationNotFound
	stored, err := r.GetByID(ctx, s.ID)
	if err != nil {
		return err
	}
	*s = stored
	return nil
}

// Delete removes a station that no schedule references.
func (r *StationRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM stations WHERE id = ?`, id)
	if err != nil {
		return classify(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrStationNotFound
	}
	return nil
}
