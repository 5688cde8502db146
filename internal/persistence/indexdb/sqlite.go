// Package indexdb keeps a queryable operational index of the chunk
// service: one row per generation batch and per failure. It is a
// secondary read model; the JSONL logs remain the source of truth, and
// chunk contents are never stored.
package indexdb

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"chunkserve.dev/internal/server"
)

type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropBatch   atomic.Uint64
	dropFailure atomic.Uint64
}

type reqKind int

const (
	reqBatch reqKind = iota + 1
	reqFailure
)

type req struct {
	kind    reqKind
	batch   server.BatchEntry
	failure server.FailureEntry
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		// Batches are infrequent (one per worker cycle); a modest buffer
		// absorbs bursts without stalling the worker.
		ch: make(chan req, 4096),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	// WAL is much faster for append-style workloads.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS batches (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			start TEXT NOT NULL,
			claimed INTEGER NOT NULL,
			generated INTEGER NOT NULL,
			failed INTEGER NOT NULL,
			micros INTEGER NOT NULL,
			coords_json TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_batches_start ON batches(start);`,
		`CREATE TABLE IF NOT EXISTS failures (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			at TEXT NOT NULL,
			cx INTEGER NOT NULL,
			cy INTEGER NOT NULL,
			cz INTEGER NOT NULL,
			err TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_failures_coord ON failures(cx, cy, cz);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	if _, err := db.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// RecordBatch enqueues a batch row; dropped if the indexer falls behind.
func (s *SQLiteIndex) RecordBatch(e server.BatchEntry) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- req{kind: reqBatch, batch: e}:
	default:
		s.dropBatch.Add(1)
	}
}

// RecordFailure enqueues a failure row; dropped if the indexer falls behind.
func (s *SQLiteIndex) RecordFailure(e server.FailureEntry) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- req{kind: reqFailure, failure: e}:
	default:
		s.dropFailure.Add(1)
	}
}

// Dropped reports how many entries were discarded because the queue was full.
func (s *SQLiteIndex) Dropped() (batches, failures uint64) {
	return s.dropBatch.Load(), s.dropFailure.Load()
}

func (s *SQLiteIndex) loop() {
	insertBatch, _ := s.db.Prepare(`INSERT INTO batches(start,claimed,generated,failed,micros,coords_json) VALUES(?,?,?,?,?,?)`)
	insertFailure, _ := s.db.Prepare(`INSERT INTO failures(at,cx,cy,cz,err) VALUES(?,?,?,?,?)`)
	defer func() {
		if insertBatch != nil {
			_ = insertBatch.Close()
		}
		if insertFailure != nil {
			_ = insertFailure.Close()
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 256
		commitMaxWait = 2 * time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.Begin()
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqBatch:
			coords, _ := json.Marshal(r.batch.Coords)
			if insertBatch != nil {
				if _, err := tx.Stmt(insertBatch).Exec(
					r.batch.Start.Format(time.RFC3339Nano),
					r.batch.Claimed,
					r.batch.Generated,
					r.batch.Failed,
					r.batch.Micros,
					string(coords),
				); err != nil {
					rollback()
					continue
				}
				opCount++
			}
		case reqFailure:
			f := r.failure
			if insertFailure != nil {
				if _, err := tx.Stmt(insertFailure).Exec(
					f.At.Format(time.RFC3339Nano),
					f.Coord.X, f.Coord.Y, f.Coord.Z,
					f.Err,
				); err != nil {
					rollback()
					continue
				}
				opCount++
			}
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}

	commit()
}
