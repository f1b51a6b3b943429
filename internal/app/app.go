package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"

	"lapsed/internal/config"
	"lapsed/internal/eventbus"
	"lapsed/internal/job"
	"lapsed/internal/schedule"
	"lapsed/internal/scheduler"
	"lapsed/internal/storage"
	"lapsed/internal/task"
	logx "lapsed/pkg/logx"
)

// Deps are the collaborator implementations supplied at the edge. The core
// never implements fetching or encoding itself.
type Deps struct {
	FS     afero.Fs      // defaults to the OS filesystem
	Fetch  job.FetchFunc // camera image fetch; required when cameras exist
	Encode job.EncodeFunc
}

type App struct {
	cfgPath string
	deps    Deps

	cfgm *config.Manager

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	mgr   *task.Manager
	sched *scheduler.Service

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(cfgPath string, deps Deps) (*App, error) {
	if deps.FS == nil {
		deps.FS = afero.NewOsFs()
	}

	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))

	bus := eventbus.New()

	// Storage (optional)
	var store storage.Store
	if sc, enabled, err := mapStorageConfig(cfg); err != nil {
		return nil, err
	} else if enabled {
		st, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
		if err != nil {
			return nil, err
		}
		store = st
		log.Info("storage enabled", logx.String("driver", sc.Driver))
	}

	mgrCfg, err := mapManagerConfig(cfg)
	if err != nil {
		return nil, err
	}
	mgr := task.New(mgrCfg, log.With(logx.String("comp", "taskmgr")), bus)

	tick, err := config.ParseDurationOrDefault("scheduler.tick", cfg.Scheduler.Tick, time.Second)
	if err != nil {
		return nil, err
	}
	sched := scheduler.New(scheduler.Config{Tick: tick}, mgr,
		log.With(logx.String("comp", "scheduler")))

	return &App{
		cfgPath: cfgPath,
		deps:    deps,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     bus,
		store:   store,
		mgr:     mgr,
		sched:   sched,
	}, nil
}

// Manager exposes the task registry for boundary consumers (list active,
// cancel by id, run-now).
func (a *App) Manager() *task.Manager { return a.mgr }

// Scheduler exposes the tick actor for boundary consumers (run-now, reload,
// snapshot).
func (a *App) Scheduler() *scheduler.Service { return a.sched }

// Bus exposes task lifecycle and progress events.
func (a *App) Bus() eventbus.Bus { return a.bus }

func (a *App) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	cfg := a.cfgm.Get()
	subjects, err := a.buildSubjects(cfg)
	if err != nil {
		return err
	}
	if err := a.sched.Reload(subjects); err != nil {
		return err
	}

	a.mgr.Start(runCtx)
	if cfg.Scheduler.Enabled {
		a.sched.Start(runCtx)
	} else {
		a.log.Info("scheduler disabled by config")
	}

	// Transactional config reload: validate before commit/publish.
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if _, err := mapManagerConfig(cfg); err != nil {
			return err
		}
		if _, _, err := mapStorageConfig(cfg); err != nil {
			return err
		}
		return cfg.Validate()
	})

	sub := a.cfgm.Subscribe(8)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(runCtx, sub)
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.cfgm.Watch(runCtx); err != nil {
			a.log.Warn("config watch stopped", logx.Err(err))
		}
	}()

	a.log.Info("app started",
		logx.Int("cameras", len(cfg.Cameras)),
		logx.Int("exports", len(cfg.Exports)))
	return nil
}

// reloadLoop applies committed config updates: logging first, then an atomic
// subject swap, then scheduler enable/disable.
func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config) {
	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: keep only the latest config.
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						newCfg = newer
					}
				default:
					goto APPLY
				}
			}
		APPLY:
			sections, attrs, subjects := config.SummarizeConfigChange(lastApplied, newCfg)
			if len(sections) == 0 {
				a.log.Debug("config reload received, but no effective changes detected")
				lastApplied = newCfg
				continue
			}
			a.log.Debug("config change summary",
				append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)...)
			if len(subjects) > 0 {
				a.log.Debug("subject changes detected", logx.Any("subjects", subjects))
			}
			prev := lastApplied
			lastApplied = newCfg

			for _, s := range sections {
				if s == "storage" {
					a.log.Warn("storage config changed; restart required for changes to take effect")
					break
				}
			}

			a.logs.Apply(logx.Config{
				Level:   newCfg.Logging.Level,
				Console: newCfg.Logging.Console,
				File: logx.FileConfig{
					Enabled: newCfg.Logging.File.Enabled,
					Path:    newCfg.Logging.File.Path,
				},
			})

			built, err := a.buildSubjects(newCfg)
			if err != nil {
				a.log.Warn("invalid subjects in config; keeping previous", logx.Err(err))
			} else if err := a.sched.Reload(built); err != nil {
				a.log.Warn("subject reload rejected; keeping previous", logx.Err(err))
			}

			if prev.Scheduler.Enabled && !newCfg.Scheduler.Enabled {
				a.log.Info("scheduler disabled via config")
				stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				a.sched.Stop(stopCtx)
				cancel()
			} else if !prev.Scheduler.Enabled && newCfg.Scheduler.Enabled {
				a.log.Info("scheduler enabled via config")
				a.sched.Start(ctx)
			}

			a.log.Info("config reloaded", logx.String("changed", strings.Join(sections, ",")))
		}
	}
}

// buildSubjects turns the config document into scheduler subjects with bound
// job bodies. The whole set builds or none of it does.
func (a *App) buildSubjects(cfg *config.Config) ([]scheduler.Subject, error) {
	out := make([]scheduler.Subject, 0, len(cfg.Cameras)+len(cfg.Exports))

	for _, cam := range cfg.Cameras {
		cam := cam
		if a.deps.Fetch == nil {
			return nil, fmt.Errorf("camera %q: no fetch implementation supplied", cam.Name)
		}
		exprs, err := buildExpressions(cam.Schedules)
		if err != nil {
			return nil, fmt.Errorf("camera %q: %w", cam.Name, err)
		}
		body := job.Capture(a.deps.FS, a.deps.Fetch, a.store, job.CaptureSpec{
			Camera:    cam.Name,
			Source:    cam.Source,
			OutputDir: cam.OutputDir,
			Prefix:    cam.Prefix,
			Ext:       cam.Ext,
		}, a.log.With(logx.String("comp", "job"), logx.String("camera", cam.Name)))
		out = append(out, scheduler.Subject{
			ID:          "camera/" + cam.Name,
			Name:        "capture " + cam.Name,
			Kind:        task.KindCapture,
			Enabled:     cam.Enabled,
			Expressions: exprs,
			Make:        func(time.Time) task.JobFunc { return body },
		})
	}

	for _, exp := range cfg.Exports {
		exp := exp
		exprs, err := buildExpressions(exp.Schedules)
		if err != nil {
			return nil, fmt.Errorf("export %q: %w", exp.Name, err)
		}
		filter, err := exp.Filter.Spec()
		if err != nil {
			return nil, fmt.Errorf("export %q: %w", exp.Name, err)
		}
		spec := job.ExportSpec{
			Name:      exp.Name,
			InputDir:  exp.InputDir,
			OutputDir: exp.OutputDir,
			Prefix:    exp.Prefix,
			Filter:    filter,
		}
		if exp.Video != nil {
			spec.VideoPath = exp.Video.Path
			spec.Render = job.RenderOptions{
				FPS:    exp.Video.FPS,
				Width:  exp.Video.Width,
				Height: exp.Video.Height,
				Codec:  exp.Video.Codec,
			}
		}
		body := job.Export(a.deps.FS, a.deps.Encode, a.store, spec,
			a.log.With(logx.String("comp", "job"), logx.String("export", exp.Name)))
		out = append(out, scheduler.Subject{
			ID:          "export/" + exp.Name,
			Name:        "export " + exp.Name,
			Kind:        task.KindExport,
			Enabled:     exp.Enabled,
			Expressions: exprs,
			Make:        func(time.Time) task.JobFunc { return body },
		})
	}

	return out, nil
}

func buildExpressions(scs []config.ScheduleConfig) ([]schedule.Expression, error) {
	exprs := make([]schedule.Expression, 0, len(scs))
	for i, sc := range scs {
		expr, err := sc.Expression()
		if err != nil {
			return nil, fmt.Errorf("schedules[%d]: %w", i, err)
		}
		exprs = append(exprs, expr)
	}
	return exprs, nil
}

// Stop shuts down in dependency order: ticking first, then the worker pool,
// then storage and logging.
func (a *App) Stop(ctx context.Context) error {
	a.log.Info("stopping")
	if a.cancel != nil {
		a.cancel()
	}

	a.sched.Stop(ctx)
	a.mgr.Stop(ctx)

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		a.log.Warn("background loops did not unwind in time")
	}

	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("storage close failed", logx.Err(err))
		}
	}
	a.log.Info("stopped")
	return a.logs.Close()
}
