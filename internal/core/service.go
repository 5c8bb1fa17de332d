package core

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/sheetload/internal/detect"
	"github.com/JonMunkholm/sheetload/internal/errs"
	"github.com/JonMunkholm/sheetload/internal/filetype"
	"github.com/JonMunkholm/sheetload/internal/metrics"
	"github.com/JonMunkholm/sheetload/internal/mover"
	"github.com/JonMunkholm/sheetload/internal/preflight"
	"github.com/JonMunkholm/sheetload/internal/reader"
	"github.com/JonMunkholm/sheetload/internal/settings"
	"github.com/JonMunkholm/sheetload/internal/sink"
)

// DefaultSchema is the sink schema used when none is configured.
const DefaultSchema = "public"

// MaxWorkers caps the replace drain's worker pool.
const MaxWorkers = 4

// runRetention is how long finished runs stay queryable.
const runRetention = 30 * time.Minute

// Options tunes a Service.
type Options struct {
	// Schema is the sink schema every table is written to.
	Schema string
	// Tolerance is the share of rows, in percent, a validation issue may
	// affect before the file fails. Missing columns always fail.
	Tolerance float64
	// Workers bounds concurrent file loads in the replace drain.
	// Zero means min(4, GOMAXPROCS).
	Workers int
	// Read carries chunking settings; HeaderRow is set per file.
	Read reader.Options
	// MaxConcurrentRuns and RunWait configure the run limiter.
	MaxConcurrentRuns int
	RunWait           time.Duration

	Metrics *metrics.Metrics
}

func (o Options) withDefaults() Options {
	if o.Schema == "" {
		o.Schema = DefaultSchema
	}
	if o.Workers <= 0 {
		o.Workers = min(MaxWorkers, runtime.GOMAXPROCS(0))
	}
	return o
}

// Service is the entry point for detection, preview and ingestion runs.
type Service struct {
	settings  settings.Repository
	sink      sink.Sink
	mover     mover.Mover
	preflight preflight.Prober
	opts      Options
	limiter   *RunLimiter

	mu   sync.RWMutex
	runs map[string]*activeRun

	now   func() time.Time
	newID func() string
}

// NewService wires a Service. The prober is wrapped so that a schema that
// passed preflight is not probed again for the Service's lifetime.
func NewService(repo settings.Repository, sk sink.Sink, mv mover.Mover, pf preflight.Prober, opts Options) *Service {
	opts = opts.withDefaults()
	if _, ok := pf.(*preflight.Cached); !ok {
		pf = preflight.NewCached(pf)
	}
	return &Service{
		settings:  repo,
		sink:      sk,
		mover:     mv,
		preflight: pf,
		opts:      opts,
		limiter:   NewRunLimiter(opts.MaxConcurrentRuns, opts.RunWait),
		runs:      make(map[string]*activeRun),
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// Settings returns the configuration repository.
func (s *Service) Settings() settings.Repository { return s.settings }

// Schema returns the sink schema.
func (s *Service) Schema() string { return s.opts.Schema }

// LimiterStatus reports run slot usage.
func (s *Service) LimiterStatus() RunLimiterStatus { return s.limiter.Status() }

// WaitForRuns blocks until active runs finish or ctx ends.
func (s *Service) WaitForRuns(ctx context.Context) error { return s.limiter.WaitForDrain(ctx) }

// Ping checks the sink.
func (s *Service) Ping(ctx context.Context) error { return s.sink.Ping(ctx) }

// DetectType returns the configured type whose columns best match the
// file's header. ok is false when nothing matches.
func (s *Service) DetectType(ctx context.Context, path string) (string, bool, error) {
	cfgs, err := s.settings.All()
	if err != nil {
		return "", false, err
	}
	f, err := detectFile(ctx, path, cfgs)
	if err != nil {
		return "", false, err
	}
	return f.Type, f.Type != "", nil
}

// config fetches and checks a type's configuration.
func (s *Service) config(typeName string) (filetype.Config, error) {
	cfg, err := s.settings.Get(typeName)
	if err != nil {
		return filetype.Config{}, err
	}
	if cfg.IsEmpty() {
		return filetype.Config{}, errs.Configf(typeName, "file type is not configured")
	}
	if err := cfg.Check(); err != nil {
		return filetype.Config{}, err
	}
	return cfg, nil
}

// Read reads path as typeName: columns are renamed and projected onto
// the type's target columns. Values are not validated.
func (s *Service) Read(ctx context.Context, path, typeName string) (*reader.Table, error) {
	cfg, err := s.config(typeName)
	if err != nil {
		return nil, err
	}
	row, err := s.headerRowFor(ctx, path, cfg)
	if err != nil {
		return nil, err
	}
	return s.readProjected(ctx, path, row, cfg)
}

// headerRowFor picks the header row that best matches cfg.
func (s *Service) headerRowFor(ctx context.Context, path string, cfg filetype.Config) (int, error) {
	rows, err := reader.Peek(ctx, path, detect.MaxHeaderRows)
	if err != nil {
		return 0, err
	}
	best, bestScore := 0, -1.0
	for i, row := range rows {
		m, ok := detect.Score(row, cfg)
		if ok && m.Score > bestScore {
			best, bestScore = i, m.Score
		}
	}
	return best, nil
}

// Run processes paths (files or directories) in one batch and blocks
// until it finishes.
func (s *Service) Run(ctx context.Context, paths []string) (*Report, error) {
	return s.run(ctx, s.newID(), paths, nil)
}

// =============================================================================
// Background runs
// =============================================================================

// Phase is the stage a background run is in.
type Phase string

const (
	PhaseStarting  Phase = "starting"
	PhasePreflight Phase = "preflight"
	PhaseDetecting Phase = "detecting"
	PhaseUpsert    Phase = "upsert"
	PhaseReplace   Phase = "replace"
	PhaseComplete  Phase = "complete"
	PhaseFailed    Phase = "failed"
	PhaseCancelled Phase = "cancelled"
)

// Progress is a snapshot of a run.
type Progress struct {
	Phase      Phase  `json:"phase"`
	FilesTotal int    `json:"files_total"`
	FilesDone  int    `json:"files_done"`
	Current    string `json:"current,omitempty"`
}

// RunInfo describes a background run.
type RunInfo struct {
	ID        string    `json:"id"`
	Paths     []string  `json:"paths"`
	StartedAt time.Time `json:"started_at"`
	Progress  Progress  `json:"progress"`
	Report    *Report   `json:"report,omitempty"`
	Error     string    `json:"error,omitempty"`
	Done      bool      `json:"done"`
}

type activeRun struct {
	mu     sync.Mutex
	info   RunInfo
	cancel context.CancelFunc
	done   chan struct{}
}

func (r *activeRun) snapshot() RunInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	info := r.info
	info.Paths = append([]string(nil), r.info.Paths...)
	return info
}

func (r *activeRun) setProgress(p Progress) {
	r.mu.Lock()
	r.info.Progress = p
	r.mu.Unlock()
}

// StartRun begins a run in the background and returns its id. The run
// outlives ctx's deadline but keeps its values (request and batch ids).
func (s *Service) StartRun(ctx context.Context, paths []string) (string, error) {
	// Reject early when busy; the run itself takes the slot.
	if !s.limiter.TryAcquire() {
		return "", ErrRunInProgress
	}
	s.limiter.Release()

	id := s.newID()
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	run := &activeRun{
		info: RunInfo{
			ID:        id,
			Paths:     append([]string(nil), paths...),
			StartedAt: s.now(),
			Progress:  Progress{Phase: PhaseStarting},
		},
		cancel: cancel,
		done:   make(chan struct{}),
	}

	s.mu.Lock()
	s.runs[id] = run
	s.mu.Unlock()

	go func() {
		defer close(run.done)
		defer cancel()

		rep, err := s.run(runCtx, id, paths, run.setProgress)

		run.mu.Lock()
		run.info.Report = rep
		run.info.Done = true
		switch {
		case err != nil:
			run.info.Error = errs.Summary(err)
			run.info.Progress.Phase = PhaseFailed
		case rep != nil && rep.Cancelled:
			run.info.Progress.Phase = PhaseCancelled
		default:
			run.info.Progress.Phase = PhaseComplete
		}
		run.mu.Unlock()

		s.cleanup(id, runRetention)
	}()

	return id, nil
}

// GetRun returns the current state of a background run.
func (s *Service) GetRun(id string) (RunInfo, error) {
	run, err := s.lookup(id)
	if err != nil {
		return RunInfo{}, err
	}
	return run.snapshot(), nil
}

// ListRuns returns tracked runs, newest first.
func (s *Service) ListRuns() []RunInfo {
	s.mu.RLock()
	infos := make([]RunInfo, 0, len(s.runs))
	for _, r := range s.runs {
		infos = append(infos, r.snapshot())
	}
	s.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool { return infos[i].StartedAt.After(infos[j].StartedAt) })
	return infos
}

// CancelRun asks a background run to stop after the file in progress.
func (s *Service) CancelRun(id string) error {
	run, err := s.lookup(id)
	if err != nil {
		return err
	}
	run.cancel()
	return nil
}

// WaitRun blocks until the run finishes or ctx ends.
func (s *Service) WaitRun(ctx context.Context, id string) (RunInfo, error) {
	run, err := s.lookup(id)
	if err != nil {
		return RunInfo{}, err
	}
	select {
	case <-run.done:
		return run.snapshot(), nil
	case <-ctx.Done():
		return RunInfo{}, ctx.Err()
	}
}

// ErrRunNotFound is returned for unknown or expired run ids.
var ErrRunNotFound = errors.New("run not found")

func (s *Service) lookup(id string) (*activeRun, error) {
	s.mu.RLock()
	run, ok := s.runs[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return run, nil
}

// cleanup stops tracking a run after a delay.
func (s *Service) cleanup(id string, delay time.Duration) {
	time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.runs, id)
		s.mu.Unlock()
	})
}
