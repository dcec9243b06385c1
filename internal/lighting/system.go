package lighting

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"lightforge.dev/internal/bakejob"
	"lightforge.dev/internal/scene"
)

// Stage is the build state machine's current position. Stages only advance
// forward, or jump straight to StageNotRunning on cancellation or failure.
type Stage int

const (
	StageNotRunning Stage = iota
	StageStartup
	StageAmortizedExport
	StageKickoff
	StageAsyncBuilding
	StageAutoApplyImport
	StageWaitingForImport
	StageImport
)

func (s Stage) String() string {
	switch s {
	case StageNotRunning:
		return "NotRunning"
	case StageStartup:
		return "Startup"
	case StageAmortizedExport:
		return "AmortizedExport"
	case StageKickoff:
		return "Kickoff"
	case StageAsyncBuilding:
		return "AsynchronousBuilding"
	case StageAutoApplyImport:
		return "AutoApplyingImport"
	case StageWaitingForImport:
		return "WaitingForImport"
	case StageImport:
		return "Import"
	}
	return "Unknown"
}

// System is one build session: it gathers the scene, drives the remote job
// and applies the results. Create via the Manager, never directly; at most
// one lives at a time.
type System struct {
	log     *log.Logger
	opts    Options
	world   *scene.World
	notify  Notifier
	results *ResultsLog
	dial    ServiceDialer

	client *bakejob.Client

	stage     Stage
	cancelled bool

	jobGUID uuid.UUID

	lights   []*scene.Light
	meshes   []*scene.Mesh
	mappings []*scene.Mapping

	deterministicIndex int
	nextVisibilityID   int

	lightingBounds   scene.Box
	importanceBounds scene.Box

	stats           Statistics
	startedAt       time.Time
	processingStart time.Time
}

func newSystem(world *scene.World, opts Options, dial ServiceDialer, logger *log.Logger, notify Notifier, results *ResultsLog) *System {
	return &System{
		log:     logger,
		opts:    opts,
		world:   world,
		notify:  notify,
		results: results,
		dial:    dial,
		jobGUID: uuid.New(),
	}
}

func (s *System) Stage() Stage { return s.stage }

// RequestCancel flags cooperative cancellation. The next Tick observes it.
func (s *System) RequestCancel() { s.cancelled = true }

// Begin runs the synchronous startup pipeline: gather, group, stamp IDs,
// connect and open the remote job. Returns async=true when the build
// continues through Tick, async=false when it completed on the spot.
func (s *System) Begin(ctx context.Context) (async bool, err error) {
	s.stage = StageStartup
	s.startedAt = time.Now()
	startup := track(&s.stats.Startup)

	if s.opts.VisibilityOnly && !s.world.Settings.PrecomputeVisibility {
		startup()
		return false, errors.New("visibility-only build requested but the world does not precompute visibility")
	}

	s.resetBuildMarkers()
	if !s.opts.VisibilityOnly {
		s.prepareLights()
	}
	s.gatherScene()
	s.assignDeterministicIDs()
	startup()

	// With precomputed lighting forced off there is nothing to bake: wipe
	// the old data and commit the empty state immediately.
	if s.world.Settings.ForceNoPrecomputed {
		s.invalidateStaticLighting()
		s.applyNewLightingData(true)
		s.postInvalidate()
		s.stats.Total = time.Since(s.startedAt)
		s.stage = StageNotRunning
		return false, nil
	}

	svc, err := s.dial(ctx)
	if err != nil {
		return false, fmt.Errorf("%w: %v", bakejob.ErrConnection, err)
	}
	s.client = bakejob.NewClient(svc, s.log)
	s.client.ImmediateImport = s.opts.ImmediateImport
	if err := s.client.Connect(ctx, s.opts.ClientName); err != nil {
		return false, err
	}

	snap := s.buildSnapshot()
	if s.opts.DumpBlobsTo != "" {
		if err := snap.DumpSections(s.opts.DumpBlobsTo); err != nil {
			s.results.Warningf("dumping export blobs: %v", err)
		}
	}
	if err := s.client.OpenJob(ctx, snap, s.mappings); err != nil {
		return false, err
	}
	s.stage = StageAmortizedExport
	return true, nil
}

// Tick advances the state machine by at most one step. Never blocks; every
// stage either makes one unit of progress or observes cached remote status.
func (s *System) Tick(ctx context.Context, env Environment) {
	switch s.stage {
	case StageAmortizedExport:
		if s.cancelled {
			s.failBuild(ctx, ErrBuildCancelled)
			return
		}
		exp := track(&s.stats.Export)
		done, pct, err := s.client.ExportStep(ctx)
		exp()
		if err != nil {
			s.failBuild(ctx, fmt.Errorf("%w: %v", bakejob.ErrJobStart, err))
			return
		}
		s.notify.Progress(pct, "Exporting lighting data")
		if done {
			s.stage = StageKickoff
		}

	case StageKickoff:
		if s.cancelled {
			s.failBuild(ctx, ErrBuildCancelled)
			return
		}
		if err := s.client.Kickoff(ctx); err != nil {
			s.failBuild(ctx, err)
			return
		}
		s.processingStart = time.Now()
		s.stage = StageAsyncBuilding
		s.notify.Progress(0, "Building lighting")

	case StageAsyncBuilding:
		if s.cancelled {
			s.client.Cancel()
			s.failBuild(ctx, ErrBuildCancelled)
			return
		}
		finished, succeeded, pct, err := s.client.Poll(ctx)
		if err != nil {
			s.failBuild(ctx, err)
			return
		}
		s.notify.Progress(pct, "Building lighting")
		if !finished {
			return
		}
		s.stats.Processing = time.Since(s.processingStart)
		if !succeeded {
			s.failBuild(ctx, bakejob.ErrRemoteFailed)
			return
		}
		s.stage = StageAutoApplyImport

	case StageAutoApplyImport:
		if s.cancelled {
			s.failBuild(ctx, ErrBuildCancelled)
			return
		}
		if !canAutoApply(env) {
			s.notify.BuildDone(true)
			s.stage = StageWaitingForImport
			return
		}
		s.notify.BuildDone(false)
		s.finish(ctx, true)
		s.stage = StageNotRunning

	case StageWaitingForImport:
		if s.cancelled {
			s.finish(ctx, false)
			s.notify.BuildCancelled()
			s.stage = StageNotRunning
		}
	}
}

// failBuild tears the build down to NotRunning. The remote job, if one was
// ever opened, is closed here; cancellation and failure get distinct
// user-facing messaging.
func (s *System) failBuild(ctx context.Context, err error) {
	if s.client != nil {
		if cerr := s.client.CloseJob(ctx); cerr != nil {
			s.log.Printf("closing job after failure: %v", cerr)
		}
	}
	if errors.Is(err, ErrBuildCancelled) {
		s.notify.BuildCancelled()
	} else {
		s.results.Errorf("%v", err)
		s.notify.BuildFailed(err.Error())
	}
	s.stage = StageNotRunning
}

func (s *System) buildSnapshot() *bakejob.Snapshot {
	header := bakejob.SceneHeaderV1{
		Version:        1,
		JobGUID:        s.jobGUID.String(),
		Quality:        s.opts.Quality.String(),
		VisibilityOnly: s.opts.VisibilityOnly,
	}
	if lvl := s.world.PersistentLevel(); lvl != nil {
		header.LevelName = lvl.Name
	}
	var volumes []scene.Box
	if v := s.importanceVolume(); v.Valid() {
		volumes = append(volumes, v)
	}
	return bakejob.NewSnapshot(header, volumes, s.lights, s.meshes, s.mappings)
}

// Importance volume synthesis: the remote solver concentrates quality inside
// the volume, so a scene without one gets a volume derived from the
// shadow-casting geometry's bounds.
const (
	importanceVolumePad float32 = 500
	maxImportanceExtent float32 = 10000
)

func (s *System) importanceVolume() scene.Box {
	b := s.importanceBounds
	if !b.Valid() {
		b = s.lightingBounds
	}
	if !b.Valid() {
		return b
	}
	b = b.ExpandedBy(importanceVolumePad)
	size := b.Max.Sub(b.Min)
	if size.X() <= maxImportanceExtent && size.Y() <= maxImportanceExtent && size.Z() <= maxImportanceExtent {
		return b
	}
	s.results.Warningf("scene is very large: automatic importance volume clamped to %.0f units per axis, lighting quality may suffer at the edges", maxImportanceExtent)
	c := b.Center()
	half := size.Mul(0.5)
	for i := 0; i < 3; i++ {
		if half[i] > maxImportanceExtent/2 {
			half[i] = maxImportanceExtent / 2
		}
	}
	return scene.BoxOf(c.Sub(half), c.Add(half))
}
