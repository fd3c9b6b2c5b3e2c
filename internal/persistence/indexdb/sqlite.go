package indexdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

// SQLiteIndex is a read-model of processed requests. Writes are queued and
// applied by a single goroutine so callers never wait on disk.
type SQLiteIndex struct {
	db  *sql.DB
	log zerolog.Logger

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	// mu orders sends on ch against close(ch).
	mu      sync.RWMutex
	closed  bool
	dropped atomic.Uint64
}

type reqKind int

const (
	reqRun reqKind = iota + 1
	reqRequest
	reqBody
)

type req struct {
	kind reqKind

	run     RunRow
	request RequestRow
	body    BodyRow
}

type RunRow struct {
	RunID      string
	StartedAt  time.Time
	RollupURL  string
	StepRateHz int
	SimSeconds float64
}

type RequestRow struct {
	RunID       string
	Cycle       uint64
	RequestType string
	Payload     string
	InputIndex  *uint64
	Status      string
	Step        uint64
	Digest      string
	RecordedAt  time.Time
}

type BodyRow struct {
	RunID    string
	BodyID   int
	Cycle    uint64
	Mass     float64
	Radius   float64
	StartPos [3]float64
	StartVel [3]float64
	FinalPos [3]float64
	FinalVel [3]float64
}

func OpenSQLite(path string, logger zerolog.Logger) (*SQLiteIndex, error) {
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
		db:  db,
		log: logger,
		ch:  make(chan req, 4096),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
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
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			started_at TEXT NOT NULL,
			rollup_url TEXT NOT NULL,
			step_rate_hz INTEGER NOT NULL,
			sim_seconds REAL NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS requests (
			run_id TEXT NOT NULL,
			cycle INTEGER NOT NULL,
			request_type TEXT NOT NULL,
			payload TEXT NOT NULL,
			input_index INTEGER,
			status TEXT NOT NULL,
			step INTEGER NOT NULL,
			digest TEXT NOT NULL,
			recorded_at TEXT NOT NULL,
			PRIMARY KEY (run_id, cycle)
		);`,
		`CREATE TABLE IF NOT EXISTS bodies (
			run_id TEXT NOT NULL,
			body_id INTEGER NOT NULL,
			cycle INTEGER NOT NULL,
			mass REAL NOT NULL,
			radius REAL NOT NULL,
			start_json TEXT NOT NULL,
			final_json TEXT NOT NULL,
			PRIMARY KEY (run_id, body_id)
		);`,
		`CREATE INDEX IF NOT EXISTS requests_type ON requests(request_type, status);`,
	}
	for _, st := range stmts {
		if _, err := db.Exec(st); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.ch)
		s.mu.Unlock()
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// Dropped reports how many rows were discarded because the queue was full.
func (s *SQLiteIndex) Dropped() uint64 { return s.dropped.Load() }

func (s *SQLiteIndex) RecordRun(r RunRow)         { s.enqueue(req{kind: reqRun, run: r}) }
func (s *SQLiteIndex) RecordRequest(r RequestRow) { s.enqueue(req{kind: reqRequest, request: r}) }
func (s *SQLiteIndex) RecordBody(r BodyRow)       { s.enqueue(req{kind: reqBody, body: r}) }

func (s *SQLiteIndex) enqueue(r req) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- r:
	default:
		s.dropped.Add(1)
	}
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	var tx *sql.Tx
	commit := func() {
		if tx == nil {
			return
		}
		if err := tx.Commit(); err != nil {
			s.log.Warn().Err(err).Msg("index commit")
		}
		tx = nil
	}

	for r := range s.ch {
		if tx == nil {
			txx, err := s.db.BeginTx(ctx, nil)
			if err != nil {
				s.log.Warn().Err(err).Msg("index begin")
				continue
			}
			tx = txx
		}
		if err := apply(tx, r); err != nil {
			s.log.Warn().Err(err).Int("kind", int(r.kind)).Msg("index write")
			_ = tx.Rollback()
			tx = nil
			continue
		}
		// Batch whatever is already queued, then make it durable.
		if len(s.ch) == 0 {
			commit()
		}
	}
	commit()
}

func apply(tx *sql.Tx, r req) error {
	switch r.kind {
	case reqRun:
		ru := r.run
		_, err := tx.Exec(`INSERT OR REPLACE INTO runs(run_id,started_at,rollup_url,step_rate_hz,sim_seconds) VALUES(?,?,?,?,?)`,
			ru.RunID, ru.StartedAt.UTC().Format(time.RFC3339Nano), ru.RollupURL, ru.StepRateHz, ru.SimSeconds)
		return err

	case reqRequest:
		rq := r.request
		var inputIndex any
		if rq.InputIndex != nil {
			inputIndex = int64(*rq.InputIndex)
		}
		_, err := tx.Exec(`INSERT OR REPLACE INTO requests(run_id,cycle,request_type,payload,input_index,status,step,digest,recorded_at) VALUES(?,?,?,?,?,?,?,?,?)`,
			rq.RunID, int64(rq.Cycle), rq.RequestType, rq.Payload, inputIndex, rq.Status, int64(rq.Step), rq.Digest,
			rq.RecordedAt.UTC().Format(time.RFC3339Nano))
		return err

	case reqBody:
		b := r.body
		start, _ := json.Marshal(map[string][3]float64{"pos": b.StartPos, "vel": b.StartVel})
		final, _ := json.Marshal(map[string][3]float64{"pos": b.FinalPos, "vel": b.FinalVel})
		_, err := tx.Exec(`INSERT OR REPLACE INTO bodies(run_id,body_id,cycle,mass,radius,start_json,final_json) VALUES(?,?,?,?,?,?,?)`,
			b.RunID, b.BodyID, int64(b.Cycle), b.Mass, b.Radius, string(start), string(final))
		return err
	}
	return fmt.Errorf("unknown index request kind %d", r.kind)
}
