// Command go-blur blurs one image by splitting it into row bands that run on
// separate execution queues, computing digits of pi on another queue at the
// same time, and reporting where each workload ran and how long it took.
//
// Usage:
//
//	go-blur <imagefile>
//	go-blur --history
//
// The result is written to blurred_<imagefile> in the working directory.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"go-blur/core"
	"go-blur/device"
	"go-blur/dispatch"
	"go-blur/filter"
	"go-blur/history"
	"go-blur/imaging"
	"go-blur/logging"
	"go-blur/partition"
	"go-blur/profiling"
	"go-blur/shutdown"
)

func main() {
	// A missing .env is normal.
	_ = godotenv.Load()

	os.Exit(run(os.Args, os.Stdout, os.Stderr))
}

// run executes one invocation and returns the process exit code.
func run(args []string, stdout, stderr io.Writer) int {
	program := "go-blur"
	if len(args) > 0 {
		program = filepath.Base(args[0])
		args = args[1:]
	}

	parsed, err := core.ParseArgs(program, args)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return core.ExitCodeUsage
	}

	cfg, err := core.LoadConfig(core.GetEnvOrDefault(core.EnvConfigFile, ""))
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return core.ExitCodeUsage
	}

	logger, err := logging.NewLogger(logging.Config{
		Level:       logging.ParseLogLevelString(cfg.LogLevel, logging.InfoLevel),
		Development: cfg.DevMode,
		FilePath:    cfg.LogFile,
		Console:     stderr,
	})
	if err != nil {
		fmt.Fprintf(stderr, "Failed to initialize logger: %v\n", err)
		return core.ExitCodeRuntime
	}

	manager := shutdown.NewManager(logger)
	manager.Start()
	manager.Register("logger", shutdown.PriorityLogger, func(context.Context) error {
		// Syncing a terminal returns EINVAL on Linux.
		_ = logger.Sync()
		return nil
	})

	a := &app{
		cfg:     cfg,
		logger:  logger,
		manager: manager,
		report:  newReporter(stdout, stderr),
	}

	var code int
	if parsed.History {
		code = a.listHistory(manager.Context())
	} else {
		code = a.blur(manager.Context(), parsed.ImageFile)
	}

	if err := manager.Shutdown(); err != nil {
		fmt.Fprintf(stderr, "Warning: %v\n", err)
	}
	return manager.ExitCode(code)
}

// app holds what one invocation shares between its steps.
type app struct {
	cfg     *core.Config
	logger  *logging.Logger
	manager *shutdown.Manager
	report  *reporter

	repo *history.Repository
}

// openHistory opens the run history if one is configured. Failures are
// logged and leave history disabled.
func (a *app) openHistory() {
	if a.cfg.HistoryDB == "" {
		return
	}
	db, err := history.Open(a.cfg.HistoryDB)
	if err != nil {
		a.logger.Warn("run history unavailable", zap.String("path", a.cfg.HistoryDB), zap.Error(err))
		return
	}
	a.manager.Register("history", shutdown.PriorityHistory, func(context.Context) error {
		return db.Close()
	})
	a.repo = history.NewRepository(db)
}

func (a *app) listHistory(ctx context.Context) int {
	if a.cfg.HistoryDB == "" {
		a.report.failure(fmt.Errorf("run history is disabled, set %s", core.EnvHistoryDB))
		return core.ExitCodeUsage
	}
	a.openHistory()
	if a.repo == nil {
		a.report.failure(fmt.Errorf("cannot open run history at %s", a.cfg.HistoryDB))
		return core.ExitCodeRuntime
	}

	runs, err := a.repo.ListRuns(ctx, history.DefaultListLimit)
	if err != nil {
		a.report.failure(err)
		return core.ExitCodeRuntime
	}
	a.report.history(runs)
	return core.ExitCodeSuccess
}

func (a *app) discoverer() device.Discoverer {
	if len(a.cfg.Devices) > 0 {
		return device.StaticFromNames(a.cfg.Devices)
	}
	return device.NewNvidiaSMI(device.NvidiaSMIConfig{Path: a.cfg.NvidiaSMI})
}

// blur runs the whole pipeline for one image. The output file is written
// only when every workload succeeded.
func (a *app) blur(ctx context.Context, input string) int {
	output := core.OutputFileName(input)
	rec := history.Run{InputFile: input, OutputFile: output, DigitGroups: a.cfg.DigitGroups}

	a.openHistory()

	fail := func(err error) int {
		a.logger.Error("blur failed", zap.String("input", input), zap.Error(err))
		a.report.failure(err)
		rec.Status = history.StatusFailed
		rec.ErrorMessage = err.Error()
		a.saveRun(rec)
		return core.ExitCodeRuntime
	}

	if _, err := imaging.FormatFromPath(output); err != nil {
		return fail(fmt.Errorf("cannot write %s: %w", output, err))
	}

	kind, err := a.cfg.Kind()
	if err != nil {
		return fail(err)
	}
	ratios, err := a.cfg.Ratios()
	if err != nil {
		return fail(err)
	}
	planner, err := partition.NewPlanner(a.cfg.AlignQuantum, ratios, a.cfg.DropTail)
	if err != nil {
		return fail(err)
	}

	pool := device.NewPool(ctx, a.discoverer(), a.logger.Named("device"))
	a.manager.Register("queues", shutdown.PriorityQueues, func(context.Context) error {
		pool.Close()
		return nil
	})
	a.report.devices(pool)
	rec.QueueCount = pool.Len()

	img, err := imaging.ReadImage(input, a.cfg.FilterWidth/2, a.cfg.Limits())
	if err != nil {
		return fail(err)
	}
	rec.Width, rec.Height, rec.Channels = img.Width, img.Height, img.Channels

	f, err := filter.Generate(kind, a.cfg.FilterWidth, img.Channels)
	if err != nil {
		return fail(err)
	}
	rec.FilterWidth = f.Width

	out, err := imaging.Allocate(img.Width, img.Height, img.Channels)
	if err != nil {
		return fail(err)
	}

	plan, err := planner.Plan(img.Height, a.cfg.BandCount, f.Halo)
	if err != nil {
		return fail(err)
	}
	rec.BandCount = len(plan.Bands)
	a.report.job(input, output, img, f, plan)

	timeline := profiling.NewTimeline(nil)
	logger := a.logger.With(zap.String("run_id", timeline.RunID().String()))
	orchestrator := dispatch.New(pool, timeline, logger)

	result, err := orchestrator.Run(ctx, dispatch.Job{
		Input:       img,
		Output:      out,
		Filter:      f,
		Plan:        plan,
		DigitGroups: a.cfg.DigitGroups,
		Kernel:      a.cfg.KernelOptions(),
	})
	summary := timeline.Summary()
	rec.ID = summary.RunID
	rec.Span = summary.Span
	rec.Workloads = history.WorkloadsFromSummary(summary)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			err = fmt.Errorf("interrupted before all work was submitted: %w", err)
		}
		return fail(err)
	}

	if err := imaging.WriteImage(out, output); err != nil {
		return fail(err)
	}

	a.report.assignments(result)
	a.report.digits(result.Digits)
	a.report.timings(summary)
	a.report.success(output)

	logger.Info("blur complete",
		zap.String("output", output),
		zap.Duration("span", summary.Span),
		zap.Int("bands", len(plan.Bands)),
		zap.Int("queues", pool.Len()),
	)

	rec.Status = history.StatusSuccess
	a.saveRun(rec)
	return core.ExitCodeSuccess
}

// saveRun records rec and prunes old runs. History is best effort; errors
// are only logged.
func (a *app) saveRun(rec history.Run) {
	if a.repo == nil {
		return
	}
	// Saved even when the run was interrupted.
	ctx := context.Background()
	if _, err := a.repo.InsertRun(ctx, rec); err != nil {
		a.logger.Warn("failed to record run", zap.Error(err))
		return
	}
	if n, err := a.repo.Prune(ctx, history.DefaultRetention); err != nil {
		a.logger.Warn("failed to prune run history", zap.Error(err))
	} else if n > 0 {
		a.logger.Debug("pruned run history", zap.Int64("removed", n))
	}
}
