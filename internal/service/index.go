package service

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"
)

// JobIndex is the service's durable record of every job it has run: open and
// close times, counts and per-mapping bake rows. Writes go through a single
// writer goroutine so bake loops never stall on disk.
type JobIndex struct {
	db *sql.DB

	ch   chan idxReq
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool
}

type idxKind int

const (
	idxOpen idxKind = iota + 1
	idxBaked
	idxFinished
	idxClosed
)

type idxReq struct {
	kind idxKind

	jobID    string
	jobGUID  string
	quality  string
	meshes   int
	mappings int

	mappingGUID string
	texels      int

	succeeded bool
}

func OpenIndex(path string) (*JobIndex, error) {
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

	j := &JobIndex{
		db: db,
		// Buffered: per-mapping bake rows arrive in bursts.
		ch: make(chan idxReq, 4096),
	}
	j.wg.Add(1)
	go func() {
		defer j.wg.Done()
		j.loop()
	}()
	return j, nil
}

func initPragmas(db *sql.DB) error {
	// WAL suits the append-style workload; NORMAL durability is fine for a
	// secondary index.
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
		`CREATE TABLE IF NOT EXISTS jobs (
			job_id TEXT PRIMARY KEY,
			job_guid TEXT NOT NULL,
			quality TEXT NOT NULL,
			mesh_count INTEGER NOT NULL,
			mapping_count INTEGER NOT NULL,
			opened_at TEXT NOT NULL,
			finished_at TEXT,
			succeeded INTEGER,
			closed_at TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS mappings (
			job_id TEXT NOT NULL,
			mapping_guid TEXT NOT NULL,
			texels INTEGER NOT NULL,
			baked_at TEXT NOT NULL,
			PRIMARY KEY (job_id, mapping_guid)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_mappings_job ON mappings(job_id);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (j *JobIndex) loop() {
	for r := range j.ch {
		now := time.Now().UTC().Format(time.RFC3339Nano)
		switch r.kind {
		case idxOpen:
			_, _ = j.db.Exec(
				`INSERT OR REPLACE INTO jobs (job_id, job_guid, quality, mesh_count, mapping_count, opened_at) VALUES (?,?,?,?,?,?)`,
				r.jobID, r.jobGUID, r.quality, r.meshes, r.mappings, now)
		case idxBaked:
			_, _ = j.db.Exec(
				`INSERT OR REPLACE INTO mappings (job_id, mapping_guid, texels, baked_at) VALUES (?,?,?,?)`,
				r.jobID, r.mappingGUID, r.texels, now)
		case idxFinished:
			_, _ = j.db.Exec(
				`UPDATE jobs SET finished_at=?, succeeded=? WHERE job_id=?`,
				now, boolInt(r.succeeded), r.jobID)
		case idxClosed:
			_, _ = j.db.Exec(
				`UPDATE jobs SET closed_at=? WHERE job_id=?`,
				now, r.jobID)
		}
	}
}

func (j *JobIndex) send(r idxReq) {
	if j.closed.Load() {
		return
	}
	select {
	case j.ch <- r:
	default:
		// Index writes are best-effort; dropping beats stalling a bake.
	}
}

func (j *JobIndex) JobOpened(jobID, jobGUID, quality string, meshes, mappings int) {
	j.send(idxReq{kind: idxOpen, jobID: jobID, jobGUID: jobGUID, quality: quality, meshes: meshes, mappings: mappings})
}

func (j *JobIndex) MappingBaked(jobID, mappingGUID string, texels int) {
	j.send(idxReq{kind: idxBaked, jobID: jobID, mappingGUID: mappingGUID, texels: texels})
}

func (j *JobIndex) JobFinished(jobID string, succeeded bool) {
	j.send(idxReq{kind: idxFinished, jobID: jobID, succeeded: succeeded})
}

func (j *JobIndex) JobClosed(jobID string) {
	j.send(idxReq{kind: idxClosed, jobID: jobID})
}

// JobRow is one row of the jobs table, for admin queries and tests.
type JobRow struct {
	JobID        string
	JobGUID      string
	Quality      string
	MeshCount    int
	MappingCount int
	Succeeded    bool
	Closed       bool
}

func (j *JobIndex) Jobs(ctx context.Context) ([]JobRow, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT job_id, job_guid, quality, mesh_count, mapping_count, COALESCE(succeeded,0), closed_at IS NOT NULL FROM jobs ORDER BY opened_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []JobRow
	for rows.Next() {
		var r JobRow
		var succ, closed int
		if err := rows.Scan(&r.JobID, &r.JobGUID, &r.Quality, &r.MeshCount, &r.MappingCount, &succ, &closed); err != nil {
			return nil, err
		}
		r.Succeeded = succ != 0
		r.Closed = closed != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

func (j *JobIndex) BakedMappingCount(ctx context.Context, jobID string) (int, error) {
	var n int
	err := j.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM mappings WHERE job_id=?`, jobID).Scan(&n)
	return n, err
}

// Close drains pending writes and closes the database.
func (j *JobIndex) Close() error {
	var err error
	j.once.Do(func() {
		j.closed.Store(true)
		close(j.ch)
		j.wg.Wait()
		err = j.db.Close()
	})
	return err
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
