package lighting

import (
	"context"
	"errors"
	"log"

	"lightforge.dev/internal/bakejob"
	"lightforge.dev/internal/scene"
)

var (
	// ErrBuildInProgress rejects a second concurrent build request.
	ErrBuildInProgress = errors.New("a lighting build is already running")

	// ErrBuildCancelled marks user-requested cancellation. Not a failure;
	// teardown is the same but the messaging differs.
	ErrBuildCancelled = errors.New("lighting build cancelled")
)

// ServiceDialer opens a connection to the remote bake service. Called once
// per build, after gathering succeeds.
type ServiceDialer func(ctx context.Context) (bakejob.Service, error)

// Environment answers the safety questions that gate automatic application of
// finished lighting. Any false answer defers to explicit confirmation.
type Environment interface {
	AutoApplyEnabled() bool
	ModalUIOpen() bool
	SlowTaskRunning() bool
	InteractiveEditActive() bool
	PlaySessionActive() bool
	ProjectLoaded() bool
}

func canAutoApply(env Environment) bool {
	if env == nil {
		return false
	}
	return env.AutoApplyEnabled() &&
		!env.ModalUIOpen() &&
		!env.SlowTaskRunning() &&
		!env.InteractiveEditActive() &&
		!env.PlaySessionActive() &&
		env.ProjectLoaded()
}

// AlwaysApply is the headless Environment: nothing ever blocks auto-apply.
type AlwaysApply struct{}

func (AlwaysApply) AutoApplyEnabled() bool      { return true }
func (AlwaysApply) ModalUIOpen() bool           { return false }
func (AlwaysApply) SlowTaskRunning() bool       { return false }
func (AlwaysApply) InteractiveEditActive() bool { return false }
func (AlwaysApply) PlaySessionActive() bool     { return false }
func (AlwaysApply) ProjectLoaded() bool         { return true }

// Manager owns the single active build session and is the only entry point
// the host calls. It is not safe for concurrent use; drive it from the tick
// loop that owns the world.
type Manager struct {
	log    *log.Logger
	dial   ServiceDialer
	env    Environment
	notify Notifier

	system *System

	// results survives teardown so the host can show the log afterwards.
	results *ResultsLog
}

func NewManager(dial ServiceDialer, env Environment, notify Notifier, logger *log.Logger) *Manager {
	if notify == nil {
		notify = NopNotifier{}
	}
	return &Manager{log: logger, dial: dial, env: env, notify: notify}
}

// StartBuild creates the build session and runs its synchronous startup.
// Rejected outright when a session is already alive, without disturbing it.
func (m *Manager) StartBuild(ctx context.Context, world *scene.World, opts Options) error {
	if m.system != nil {
		m.notify.BuildFailed(ErrBuildInProgress.Error())
		return ErrBuildInProgress
	}
	m.results = &ResultsLog{}
	sys := newSystem(world, opts, m.dial, m.log, m.notify, m.results)
	m.notify.BuildStarted()

	async, err := sys.Begin(ctx)
	if err != nil {
		sys.failBuild(ctx, err)
		return err
	}
	if !async {
		// Completed on the spot (forced no-precomputed path).
		m.notify.BuildDone(false)
		return nil
	}
	m.system = sys
	return nil
}

// Tick advances the active build by one non-blocking step. Safe to call every
// frame; a nil session is a no-op.
func (m *Manager) Tick(ctx context.Context) {
	if m.system == nil {
		return
	}
	m.system.Tick(ctx, m.env)
	if m.system.Stage() == StageNotRunning {
		m.system = nil
	}
}

// CancelBuild requests cooperative cancellation. The session observes the
// flag on its next Tick and unwinds, closing the remote job if one is open.
func (m *Manager) CancelBuild() {
	if m.system != nil {
		m.system.RequestCancel()
	}
}

// IsRunning reports whether a build session is alive, including one waiting
// for an apply/discard decision.
func (m *Manager) IsRunning() bool { return m.system != nil }

// WaitingForApply reports whether finished results are pending confirmation.
func (m *Manager) WaitingForApply() bool {
	return m.system != nil && m.system.Stage() == StageWaitingForImport
}

func (m *Manager) Stage() Stage {
	if m.system == nil {
		return StageNotRunning
	}
	return m.system.Stage()
}

// ApplyPending commits results that completed while the auto-apply gate was
// closed.
func (m *Manager) ApplyPending(ctx context.Context) error {
	if !m.WaitingForApply() {
		return errors.New("no lighting results waiting to be applied")
	}
	sys := m.system
	m.system = nil
	sys.finish(ctx, true)
	return nil
}

// DiscardPending drops waiting results, leaving the previous lighting intact.
func (m *Manager) DiscardPending(ctx context.Context) error {
	if !m.WaitingForApply() {
		return errors.New("no lighting results waiting to be discarded")
	}
	sys := m.system
	m.system = nil
	sys.finish(ctx, false)
	return nil
}

// LastResults returns the warning/error log of the most recent build.
func (m *Manager) LastResults() []ResultEntry {
	if m.results == nil {
		return nil
	}
	return m.results.Entries()
}
