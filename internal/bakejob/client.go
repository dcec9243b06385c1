package bakejob

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"

	"lightforge.dev/internal/protocol"
	"lightforge.dev/internal/scene"
)

// Failure taxonomy surfaced to the build manager. The manager turns these
// into user-visible messaging; nothing here talks to the UI boundary.
var (
	ErrConnection   = errors.New("bake service unreachable")
	ErrJobStart     = errors.New("bake job failed to start")
	ErrRemoteFailed = errors.New("remote bake reported failure")
)

// Service is the job-oriented contract with the remote bake service.
// Status must never block; implementations cache the latest push.
type Service interface {
	Hello(ctx context.Context, clientName string) error
	OpenJob(ctx context.Context, msg protocol.OpenJobMsg) (jobID string, err error)
	PushChunk(ctx context.Context, msg protocol.SceneChunkMsg) error
	Kickoff(ctx context.Context, jobID string) error
	Status(jobID string) (protocol.StatusMsg, bool)
	FetchResult(ctx context.Context, jobID, mappingGUID string) ([]byte, error)
	CloseJob(ctx context.Context, jobID string) error
	Close() error
}

// Client owns one remote bake job: export, kickoff, polling and result
// import. Create one per build and discard it afterwards.
type Client struct {
	log *log.Logger
	svc Service

	jobID  string
	opened bool
	closed bool

	exp      *exporter
	mappings map[string]*scene.Mapping

	// ImmediateImport applies results as soon as the service reports them
	// instead of deferring to finalization. Debug toggle.
	ImmediateImport bool

	imported  map[string]bool
	cancelled bool
}

func NewClient(svc Service, logger *log.Logger) *Client {
	return &Client{
		log:      logger,
		svc:      svc,
		mappings: make(map[string]*scene.Mapping),
		imported: make(map[string]bool),
	}
}

// Connect performs the protocol handshake. A failure here aborts the build
// before any scene mutation has happened.
func (c *Client) Connect(ctx context.Context, clientName string) error {
	if err := c.svc.Hello(ctx, clientName); err != nil {
		return fmt.Errorf("%w: %v", ErrConnection, err)
	}
	return nil
}

// OpenJob registers the job and stages the snapshot for amortized export.
func (c *Client) OpenJob(ctx context.Context, snap *Snapshot, mappings []*scene.Mapping) error {
	open := protocol.OpenJobMsg{
		Type:            protocol.TypeOpenJob,
		ProtocolVersion: protocol.Version,
		JobGUID:         snap.Header.JobGUID,
		Quality:         snap.Header.Quality,
		MeshCount:       countMeshes(snap),
		MappingCount:    countMappings(snap),
		VisibilityOnly:  snap.Header.VisibilityOnly,
	}
	jobID, err := c.svc.OpenJob(ctx, open)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrJobStart, err)
	}
	c.jobID = jobID
	c.opened = true
	c.exp = &exporter{svc: c.svc, jobID: jobID, snap: snap}
	for _, m := range mappings {
		c.mappings[m.GUID.String()] = m
	}
	c.log.Printf("job %s opened (%d mappings)", jobID, open.MappingCount)
	return nil
}

// ExportStep pushes one export work unit. Callable repeatedly from a
// non-blocking tick; done is true once the whole snapshot has shipped.
func (c *Client) ExportStep(ctx context.Context) (done bool, percent float64, err error) {
	if c.exp == nil {
		return false, 0, fmt.Errorf("export before open")
	}
	done, err = c.exp.step(ctx)
	return done, c.exp.percent(), err
}

// Kickoff starts the remote computation.
func (c *Client) Kickoff(ctx context.Context) error {
	if err := c.svc.Kickoff(ctx, c.jobID); err != nil {
		return fmt.Errorf("%w: %v", ErrJobStart, err)
	}
	return nil
}

// Poll observes the latest pushed status without blocking. When immediate
// import is enabled, newly completed mappings are fetched and applied here.
func (c *Client) Poll(ctx context.Context) (finished, succeeded bool, percent float64, err error) {
	st, ok := c.svc.Status(c.jobID)
	if !ok {
		return false, false, 0, nil
	}
	if c.ImmediateImport {
		for _, g := range st.Completed {
			if err := c.importOne(ctx, g); err != nil {
				c.log.Printf("immediate import %s: %v", g, err)
			}
		}
	}
	return st.Finished, st.Succeeded, st.Percent, nil
}

// Cancel requests cooperative cancellation of the in-flight computation.
func (c *Client) Cancel() { c.cancelled = true }

func (c *Client) Cancelled() bool { return c.cancelled }

// ImportAll fetches and applies every processed mapping that has not been
// imported yet. Called once during finalization (bulk import).
func (c *Client) ImportAll(ctx context.Context) error {
	var firstErr error
	for g, m := range c.mappings {
		if !m.Process || c.imported[g] {
			continue
		}
		if err := c.importOne(ctx, g); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (c *Client) importOne(ctx context.Context, guid string) error {
	if c.imported[guid] {
		return nil
	}
	m, ok := c.mappings[guid]
	if !ok {
		return fmt.Errorf("unknown mapping %s", guid)
	}
	raw, err := c.svc.FetchResult(ctx, c.jobID, guid)
	if err != nil {
		return err
	}
	res, err := DecodeResult(raw)
	if err != nil {
		return err
	}
	if res.MappingGUID != m.GUID {
		return fmt.Errorf("result guid mismatch: got %s want %s", res.MappingGUID, m.GUID)
	}
	if m.Target != nil {
		m.Target.ApplyResult(res)
	}
	c.imported[guid] = true
	return nil
}

// ImportedCount reports how many mappings have been applied so far.
func (c *Client) ImportedCount() int { return len(c.imported) }

// CloseJob releases the remote job. Idempotent, and a no-op when the job was
// never opened, so teardown can call it unconditionally.
func (c *Client) CloseJob(ctx context.Context) error {
	if !c.opened || c.closed {
		return nil
	}
	c.closed = true
	if err := c.svc.CloseJob(ctx, c.jobID); err != nil {
		return err
	}
	return c.svc.Close()
}

// JobOpened reports whether a remote job was ever opened.
func (c *Client) JobOpened() bool { return c.opened }

func countMeshes(snap *Snapshot) int {
	n := 0
	for _, s := range snap.sections {
		n += len(s.Meshes)
	}
	return n
}

func countMappings(snap *Snapshot) int {
	n := 0
	for _, s := range snap.sections {
		n += len(s.Mappings)
	}
	return n
}

// DeterministicGUID builds the reproducibility GUID for a mesh: the low four
// bytes carry the dense index, everything else is zero.
func DeterministicGUID(index int) uuid.UUID {
	var g uuid.UUID
	g[12] = byte(index >> 24)
	g[13] = byte(index >> 16)
	g[14] = byte(index >> 8)
	g[15] = byte(index)
	return g
}
