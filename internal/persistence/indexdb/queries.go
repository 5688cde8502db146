package indexdb

import (
	"time"

	"chunkserve.dev/internal/server"
	"chunkserve.dev/internal/world"
)

// Totals summarizes the batches table.
type Totals struct {
	Batches   int
	Claimed   int
	Generated int
	Failed    int
}

func (s *SQLiteIndex) BatchTotals() (Totals, error) {
	var t Totals
	row := s.db.QueryRow(`SELECT COUNT(*), COALESCE(SUM(claimed),0), COALESCE(SUM(generated),0), COALESCE(SUM(failed),0) FROM batches`)
	if err := row.Scan(&t.Batches, &t.Claimed, &t.Generated, &t.Failed); err != nil {
		return Totals{}, err
	}
	return t, nil
}

// RecentFailures returns up to limit failures, newest first.
func (s *SQLiteIndex) RecentFailures(limit int) ([]server.FailureEntry, error) {
	rows, err := s.db.Query(`SELECT at, cx, cy, cz, err FROM failures ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []server.FailureEntry
	for rows.Next() {
		var at string
		var f server.FailureEntry
		var c world.ChunkCoord
		if err := rows.Scan(&at, &c.X, &c.Y, &c.Z, &f.Err); err != nil {
			return nil, err
		}
		if ts, err := time.Parse(time.RFC3339Nano, at); err == nil {
			f.At = ts
		}
		f.Coord = c
		out = append(out, f)
	}
	return out, rows.Err()
}
