package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"realty-aggregator/internal/config"
)

// State is the run state of the pipeline as a whole.
type State string

const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateError     State = "error"
	StatePaused    State = "paused"
)

// ErrAlreadyRunning is returned by Start while a run is in progress.
var ErrAlreadyRunning = errors.New("pipeline: run already in progress")

// StageDetail is the per-stage progress visible through Status.
type StageDetail struct {
	Status     string                 `json:"status"`
	Detail     map[string]interface{} `json:"detail,omitempty"`
	Error      string                 `json:"error,omitempty"`
	StartedAt  *time.Time             `json:"started_at,omitempty"`
	FinishedAt *time.Time             `json:"finished_at,omitempty"`
}

// Stage status values inside a run.
const (
	stagePending   = "pending"
	stageRunning   = "running"
	stageCompleted = "completed"
	stageError     = "error"
	stageSkipped   = "skipped"
)

// Snapshot is the externally visible pipeline state.
type Snapshot struct {
	State        State                  `json:"state"`
	CurrentStage Stage                  `json:"current_stage,omitempty"`
	Stages       map[Stage]*StageDetail `json:"stage_details"`
	StartedAt    *time.Time             `json:"started_at,omitempty"`
	FinishedAt   *time.Time             `json:"finished_at,omitempty"`
	LastError    string                 `json:"last_error,omitempty"`
	AutoMode     bool                   `json:"auto_mode"`
	NextRun      *time.Time             `json:"next_run,omitempty"`
}

// Orchestrator sequences the pipeline stages and owns the run state machine.
// Stage work happens behind Runner implementations; the orchestrator only
// starts them and polls until each reports done.
type Orchestrator struct {
	cfg     config.PipelineConfig
	runners map[Stage]Runner
	clock   Clock
	cron    *cron.Cron

	mu         sync.Mutex
	state      State
	current    Stage
	stages     map[Stage]*StageDetail
	startedAt  *time.Time
	finishedAt *time.Time
	lastError  string
	nextRun    *time.Time
	cancel     context.CancelFunc
	resume     chan struct{}
}

func NewOrchestrator(cfg config.PipelineConfig, runners map[Stage]Runner, clock Clock) *Orchestrator {
	if clock == nil {
		clock = RealClock
	}
	return &Orchestrator{
		cfg:     cfg,
		runners: runners,
		clock:   clock,
		state:   StateIdle,
		stages:  make(map[Stage]*StageDetail),
	}
}

// Start begins a full pipeline run. At most one run exists at a time.
func (o *Orchestrator) Start() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state == StateRunning || o.state == StatePaused {
		return ErrAlreadyRunning
	}

	o.stages = make(map[Stage]*StageDetail, len(StageOrder))
	for _, stage := range StageOrder {
		status := stagePending
		if !o.cfg.EnabledFor(string(stage)) {
			status = stageSkipped
		}
		o.stages[stage] = &StageDetail{Status: status}
	}

	now := o.clock.Now()
	o.state = StateRunning
	o.current = ""
	o.startedAt = &now
	o.finishedAt = nil
	o.lastError = ""
	o.nextRun = nil

	ctx, cancel := context.WithCancel(context.Background())
	o.cancel = cancel
	o.resume = make(chan struct{})

	go o.run(ctx)
	log.Printf("Pipeline: run started")
	return nil
}

// Stop aborts the current run. The pipeline returns to idle with its stage
// progress cleared; stage work already handed to runners is cancelled through
// their context, and runners whose work outlives that context get an explicit
// stop request.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	cancel := o.cancel
	current := o.current
	o.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()

	// スパイダー子プロセスはコンテキスト取消では止まらない
	if s, ok := o.runners[current].(Stopper); ok {
		if err := s.Stop(context.Background()); err != nil {
			log.Printf("Pipeline: stop request for stage %s failed: %v", current, err)
		}
	}
}

// Pause holds the pipeline before its next stage transition or status poll.
// The in-flight stage keeps working.
func (o *Orchestrator) Pause() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != StateRunning {
		return fmt.Errorf("pipeline: cannot pause in state %s", o.state)
	}
	o.state = StatePaused
	log.Printf("Pipeline: paused")
	return nil
}

// Resume continues a paused run.
func (o *Orchestrator) Resume() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != StatePaused {
		return fmt.Errorf("pipeline: cannot resume in state %s", o.state)
	}
	o.state = StateRunning
	close(o.resume)
	o.resume = make(chan struct{})
	log.Printf("Pipeline: resumed")
	return nil
}

// Status returns a copy of the current pipeline state.
func (o *Orchestrator) Status() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()

	stages := make(map[Stage]*StageDetail, len(o.stages))
	for k, v := range o.stages {
		copied := *v
		stages[k] = &copied
	}
	return Snapshot{
		State:        o.state,
		CurrentStage: o.current,
		Stages:       stages,
		StartedAt:    o.startedAt,
		FinishedAt:   o.finishedAt,
		LastError:    o.lastError,
		AutoMode:     o.cfg.AutoMode,
		NextRun:      o.nextRun,
	}
}

// run drives one full pass over the stage order.
func (o *Orchestrator) run(ctx context.Context) {
	for _, stage := range StageOrder {
		if !o.cfg.EnabledFor(string(stage)) {
			continue
		}
		if err := o.runStage(ctx, stage); err != nil {
			if errors.Is(err, context.Canceled) {
				o.finish(StateIdle, "")
				log.Printf("Pipeline: run stopped")
				return
			}
			o.finish(StateError, err.Error())
			log.Printf("Pipeline: run failed at %s: %v", stage, err)
			return
		}
	}
	o.finish(StateCompleted, "")
	log.Printf("Pipeline: run completed")
}

func (o *Orchestrator) runStage(ctx context.Context, stage Stage) error {
	if err := o.waitWhilePaused(ctx); err != nil {
		return err
	}

	runner, ok := o.runners[stage]
	if !ok {
		return fmt.Errorf("no runner for stage %s", stage)
	}

	now := o.clock.Now()
	o.mu.Lock()
	o.current = stage
	detail := o.stages[stage]
	detail.Status = stageRunning
	detail.StartedAt = &now
	o.mu.Unlock()

	fail := func(err error) error {
		done := o.clock.Now()
		o.mu.Lock()
		detail.Status = stageError
		detail.Error = err.Error()
		detail.FinishedAt = &done
		o.mu.Unlock()
		return err
	}

	log.Printf("Pipeline: stage %s starting", stage)
	if err := runner.Start(ctx); err != nil {
		return fail(err)
	}

	deadline := o.clock.Now().Add(o.cfg.GetStageTimeout())
	for {
		select {
		case <-ctx.Done():
			return fail(ctx.Err())
		case <-o.clock.After(o.cfg.GetStagePollInterval()):
		}

		if err := o.waitWhilePaused(ctx); err != nil {
			return fail(err)
		}

		done, progress, err := runner.Status(ctx)
		if err != nil {
			return fail(err)
		}

		o.mu.Lock()
		detail.Detail = progress
		o.mu.Unlock()

		if done {
			finished := o.clock.Now()
			o.mu.Lock()
			detail.Status = stageCompleted
			detail.FinishedAt = &finished
			o.mu.Unlock()
			log.Printf("Pipeline: stage %s completed", stage)
			return nil
		}
		if o.clock.Now().After(deadline) {
			return fail(fmt.Errorf("stage %s timed out after %s", stage, o.cfg.GetStageTimeout()))
		}
	}
}

// waitWhilePaused blocks until the pipeline is resumed or stopped.
func (o *Orchestrator) waitWhilePaused(ctx context.Context) error {
	for {
		o.mu.Lock()
		paused := o.state == StatePaused
		resume := o.resume
		o.mu.Unlock()
		if !paused {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-resume:
		}
	}
}

// finish records the terminal state of a run and schedules the next one in
// auto mode. A stopped run returns to idle with no stage progress left over.
func (o *Orchestrator) finish(state State, errMsg string) {
	now := o.clock.Now()
	o.mu.Lock()
	defer o.mu.Unlock()

	o.state = state
	o.current = ""
	o.lastError = errMsg
	if state == StateIdle {
		o.stages = make(map[Stage]*StageDetail)
		o.startedAt = nil
		o.finishedAt = nil
	} else {
		o.finishedAt = &now
	}
	if o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}
	if o.cfg.AutoMode {
		next := now.Add(o.cfg.GetRunInterval())
		o.nextRun = &next
	}
}

// StartScheduler begins the auto-mode tick loop. Each tick starts a run when
// auto mode is on and the scheduled time has passed.
func (o *Orchestrator) StartScheduler() error {
	if !o.cfg.AutoMode {
		return nil
	}

	o.mu.Lock()
	if o.nextRun == nil {
		next := o.clock.Now().Add(o.cfg.GetRunInterval())
		o.nextRun = &next
	}
	o.mu.Unlock()

	c := cron.New()
	_, err := c.AddFunc(fmt.Sprintf("@every %ds", o.cfg.TickSeconds), o.Tick)
	if err != nil {
		return fmt.Errorf("failed to schedule pipeline tick: %w", err)
	}
	c.Start()
	o.cron = c
	log.Printf("Pipeline: scheduler started, tick every %ds", o.cfg.TickSeconds)
	return nil
}

// StopScheduler halts the tick loop. A run in progress is not affected.
func (o *Orchestrator) StopScheduler() {
	if o.cron != nil {
		o.cron.Stop()
	}
}

// Tick is one scheduler pass. Exported so a tick can be driven directly in
// tests and maintenance scripts.
func (o *Orchestrator) Tick() {
	o.mu.Lock()
	due := o.cfg.AutoMode &&
		o.state != StateRunning && o.state != StatePaused &&
		o.nextRun != nil && !o.clock.Now().Before(*o.nextRun)
	o.mu.Unlock()

	if !due {
		return
	}
	if err := o.Start(); err != nil && !errors.Is(err, ErrAlreadyRunning) {
		log.Printf("Pipeline: scheduled start failed: %v", err)
	}
}
