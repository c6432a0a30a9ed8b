package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/iliyamo/train-ticket-booking/internal/model"
)

// TrainRepo provides CRUD operations for trains.  Facilities are kept in
// a JSON column and decoded into a string slice.
type TrainRepo struct {
	db *sql.DB
}

// NewTrainRepo returns a new TrainRepo bound to the given database.
func NewTrainRepo(db *sql.DB) *TrainRepo { return &TrainRepo{db: db} }

const trainSelect = `SELECT id, name, code, type, facilities, total_seats, created_at, updated_at FROM trains`

func scanTrain(row rowScanner, t *model.Train) error {
	var facilities []byte
	if err := row.Scan(&t.ID, &t.Name, &t.Code, &t.Type, &facilities, &t.TotalSeats, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return err
	}
	t.Facilities = []string{}
	if len(facilities) > 0 {
		if err := json.Unmarshal(facilities, &t.Facilities); err != nil {
			return err
		}
	}
	return nil
}

func encodeFacilities(f []string) ([]byte, error) {
	if f == nil {
		f = []string{}
	}
	return json.Marshal(f)
}

// List returns all trains ordered by name.
func (r *TrainRepo) List(ctx context.Context) ([]model.Train, error) {
	rows, err := r.db.QueryContext(ctx, trainSelect+` ORDER BY name ASC`)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()
	out := []model.Train{}
	for rows.Next() {
		var t model.Train
		if err := scanTrain(rows, &t); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// GetByID fetches a single train.
func (r *TrainRepo) GetByID(ctx context.Context, id uint64) (model.Train, error) {
	var t model.Train
	err := scanTrain(r.db.QueryRowContext(ctx, trainSelect+` WHERE id = ?`, id), &t)
	if errors.Is(err, sql.ErrNoRows) {
		return t, ErrTrainNotFound
	}
	return t, classify(err)
}

// Create inserts a train and reads back the stored row.
func (r *TrainRepo) Create(ctx context.Context, t *model.Train) error {
	fac, err := encodeFacilities(t.Facilities)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO trains (name, code, type, facilities, total_seats) VALUES (?, ?, ?, ?, ?)`,
		t.Name, t.Code, t.Type, fac, t.TotalSeats)
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
	*t = stored
	return nil
}

// Update overwrites a train.  Shrinking total_seats also clamps the
// available_seats of the train's schedules so no schedule ends up with
// more free seats than the train has.
func (r *TrainRepo) Update(ctx context.Context, t *model.Train) error {
	fac, err := encodeFacilities(t.Facilities)
	if err != nil {
		return err
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx,
		`UPDATE trains SET name = ?, code = ?, type = ?, facilities = ?, total_seats = ?, updated_at = NOW() WHERE id = ?`,
		t.Name, t.Code, t.Type, fac, t.TotalSeats, t.ID)
	if err != nil {
		return classify(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := trainSeatPoolTx(ctx, tx, t.ID); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE schedules SET available_seats = LEAST(available_seats, ?) WHERE train_id = ?`,
		t.TotalSeats, t.ID); err != nil {
		return classify(err)
	}
	if err := tx.Commit(); err != nil {
		return classify(err)
	}
	committed = true
	stored, err := r.GetByID(ctx, t.ID)
	if err != nil {
		return err
	}
	*t = stored
	return nil
}

// Delete removes a train that no schedule references.
func (r *TrainRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM trains WHERE id = ?`, id)
	if err != nil {
		return classify(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrTrainNotFound
	}
	return nil
}
