package indexdb

import (
	"database/sql"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func TestSQLiteIndex_RecordsRequestsAndBodies(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	idx, err := OpenSQLite(path, zerolog.Nop())
	require.NoError(t, err)

	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	inputIndex := uint64(4)
	idx.RecordRun(RunRow{RunID: "run-1", StartedAt: now, RollupURL: "http://host", StepRateHz: 240, SimSeconds: 5})
	idx.RecordRequest(RequestRow{RunID: "run-1", Cycle: 1, RequestType: "advance_state", Payload: "0x7b7d", InputIndex: &inputIndex, Status: "accept", Step: 1200, Digest: "d1", RecordedAt: now})
	idx.RecordRequest(RequestRow{RunID: "run-1", Cycle: 2, RequestType: "inspect_state", Payload: "0x00", Status: "accept", Step: 1200, Digest: "d1", RecordedAt: now})
	idx.RecordBody(BodyRow{RunID: "run-1", BodyID: 1, Cycle: 1, Mass: 1, Radius: 0.1, StartPos: [3]float64{0, 0, 1}, FinalPos: [3]float64{0, 0, 0.1}})
	require.NoError(t, idx.Close())
	require.NoError(t, idx.Close())

	// Writes after close are ignored.
	idx.RecordBody(BodyRow{RunID: "run-1", BodyID: 2})

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	var runs, requests int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM runs`).Scan(&runs))
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM requests WHERE run_id='run-1'`).Scan(&requests))
	assert.Equal(t, 1, runs)
	assert.Equal(t, 2, requests)

	var (
		status string
		idxCol sql.NullInt64
	)
	require.NoError(t, db.QueryRow(`SELECT status,input_index FROM requests WHERE cycle=1`).Scan(&status, &idxCol))
	assert.Equal(t, "accept", status)
	assert.True(t, idxCol.Valid)
	assert.Equal(t, int64(4), idxCol.Int64)

	require.NoError(t, db.QueryRow(`SELECT input_index FROM requests WHERE cycle=2`).Scan(&idxCol))
	assert.False(t, idxCol.Valid)

	var final string
	require.NoError(t, db.QueryRow(`SELECT final_json FROM bodies WHERE body_id=1`).Scan(&final))
	assert.JSONEq(t, `{"pos":[0,0,0.1],"vel":[0,0,0]}`, final)
	assert.Zero(t, idx.Dropped())
}

func TestSQLiteIndex_RecordDuringClose(t *testing.T) {
	idx, err := OpenSQLite(filepath.Join(t.TempDir(), "index.db"), zerolog.Nop())
	require.NoError(t, err)

	var wg sync.WaitGroup
	start := make(chan struct{})
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			<-start
			for i := 0; i < 500; i++ {
				idx.RecordRequest(RequestRow{RunID: "run-1", Cycle: uint64(g*1000 + i), Status: "accept"})
			}
		}(g)
	}
	close(start)
	require.NoError(t, idx.Close())
	wg.Wait()
}

func TestOpenSQLite_EmptyPath(t *testing.T) {
	_, err := OpenSQLite("", zerolog.Nop())
	require.Error(t, err)
}
