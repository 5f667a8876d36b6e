package repo

import (
	"context"
	"database/sql"
	"errors"

	"decylo/internal/domain"
)

const snapshotColumns = `user_id,date,health_score,win_rate,calibration_gap,completion_rate,streak,dhi,pa,ft,ri,gm,created_at`

func scanSnapshot(row rowScanner) (domain.HealthSnapshot, error) {
	var s domain.HealthSnapshot
	var created string
	err := row.Scan(&s.UserID, &s.Date, &s.HealthScore, &s.WinRate, &s.CalibrationGap, &s.CompletionRate,
		&s.Streak, &s.DHI, &s.PA, &s.FT, &s.RI, &s.GM, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return s, ErrNotFound
	}
	if err != nil {
		return s, err
	}
	s.CreatedAt, err = parseTime(created)
	return s, err
}

// InsertSnapshot stores the day's snapshot unless one already exists. The
// first writer for a (user, date) wins; inserted reports whether this call
// was that writer.
func (r Repo) InsertSnapshot(ctx context.Context, tx *sql.Tx, s domain.HealthSnapshot) (inserted bool, err error) {
	res, err := r.conn(tx).ExecContext(ctx, `INSERT INTO health_snapshots(`+snapshotColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)
ON CONFLICT(user_id,date) DO NOTHING`,
		s.UserID, s.Date, s.HealthScore, s.WinRate, s.CalibrationGap, s.CompletionRate, s.Streak, s.DHI,
		s.PA, s.FT, s.RI, s.GM, formatTime(s.CreatedAt))
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r Repo) GetSnapshot(ctx context.Context, userID, date string) (domain.HealthSnapshot, error) {
	return scanSnapshot(r.DB.QueryRowContext(ctx, `SELECT `+snapshotColumns+` FROM health_snapshots WHERE user_id=? AND date=?`, userID, date))
}

// ListSnapshots returns snapshots on or after since (all when empty), oldest
// first.
func (r Repo) ListSnapshots(ctx context.Context, userID, since string, limit int) ([]domain.HealthSnapshot, error) {
	query := `SELECT ` + snapshotColumns + ` FROM health_snapshots WHERE user_id=? AND date>=? ORDER BY date ASC`
	args := []any{userID, since}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.HealthSnapshot
	for rows.Next() {
		s, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}
