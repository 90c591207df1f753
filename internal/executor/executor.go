package executor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/autopatchd/internal/approval"
	"github.com/fyrsmithlabs/autopatchd/internal/instruction"
	"github.com/fyrsmithlabs/autopatchd/internal/remote"
	"github.com/fyrsmithlabs/autopatchd/internal/sqlrpc"
)

const instrumentationName = "github.com/fyrsmithlabs/autopatchd/internal/executor"

// Config configures an Executor. Zero values take the defaults below.
type Config struct {
	MessagesDir   string // default "messages"
	MigrationsDir string // default "supabase/migrations"
	FrontendDir   string // default "frontend"

	LintCommand    []string      // default npm run lint
	BuildCommand   []string      // default npm run build
	RestartCommand []string      // default pm2 restart whatsapp-bot-builder --update-env
	LintTimeout    time.Duration // default 60s
	BuildTimeout   time.Duration // default 120s
	RestartTimeout time.Duration // default 30s

	// SkipChecks disables lint, build and restart.
	SkipChecks bool
}

func (c *Config) applyDefaults() {
	if c.MessagesDir == "" {
		c.MessagesDir = "messages"
	}
	if c.MigrationsDir == "" {
		c.MigrationsDir = filepath.Join("supabase", "migrations")
	}
	if c.FrontendDir == "" {
		c.FrontendDir = "frontend"
	}
	if len(c.LintCommand) == 0 {
		c.LintCommand = []string{"npm", "run", "lint"}
	}
	if len(c.BuildCommand) == 0 {
		c.BuildCommand = []string{"npm", "run", "build"}
	}
	if len(c.RestartCommand) == 0 {
		c.RestartCommand = []string{"pm2", "restart", "whatsapp-bot-builder", "--update-env"}
	}
	if c.LintTimeout <= 0 {
		c.LintTimeout = 60 * time.Second
	}
	if c.BuildTimeout <= 0 {
		c.BuildTimeout = 120 * time.Second
	}
	if c.RestartTimeout <= 0 {
		c.RestartTimeout = 30 * time.Second
	}
}

// Deps are the executor's collaborators. Nil Gate, Remote or SQL make the
// instructions that need them fail; a nil Whitelist uses the default rules.
type Deps struct {
	Gate      approval.Gate
	Remote    remote.Runner
	Whitelist *remote.Whitelist
	SQL       sqlrpc.Executor
	Runner    CommandRunner
}

// Options carries per-call context.
type Options struct {
	// TicketID correlates approval requests. Required for gated instructions.
	TicketID string
}

// Executor applies instruction batches.
type Executor struct {
	cfg    Config
	deps   Deps
	logger *zap.Logger
	tracer trace.Tracer
	now    func() time.Time
}

// New creates an executor.
func New(cfg Config, deps Deps, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.applyDefaults()
	if deps.Whitelist == nil {
		deps.Whitelist = remote.DefaultWhitelist()
	}
	if deps.Runner == nil {
		deps.Runner = ExecRunner{}
	}
	return &Executor{
		cfg:    cfg,
		deps:   deps,
		logger: logger,
		tracer: otel.Tracer(instrumentationName),
		now:    time.Now,
	}
}

// batch is the per-call state and the instruction.Handler for one Execute.
type batch struct {
	root      string
	ticketID  string
	cfg       *Config
	files     *tracker
	gate      approval.Gate
	remote    remote.Runner
	whitelist *remote.Whitelist
	sql       sqlrpc.Executor
	logger    *zap.Logger
	now       func() time.Time

	remoteOps int
	approvals []approval.Decision
}

var _ instruction.Handler = (*batch)(nil)

// Execute applies instructions in order under rootDir.
//
// The batch is not cancelled mid-flight: once started, each instruction runs
// to completion or failure. Approval waits are bounded by the gate.
func (e *Executor) Execute(ctx context.Context, rootDir string, instructions instruction.List, opts Options) *Result {
	ctx, span := e.tracer.Start(ctx, "executor.execute",
		trace.WithAttributes(
			attribute.String("ticket.id", opts.TicketID),
			attribute.Int("instructions.count", len(instructions)),
		))
	defer span.End()
	ctx = context.WithoutCancel(ctx)

	res := e.execute(ctx, rootDir, instructions, opts)
	span.SetAttributes(
		attribute.Bool("result.success", res.Success),
		attribute.Int("result.modified_files", len(res.ModifiedFiles)),
	)
	if res.Err != nil {
		span.RecordError(res.Err)
		span.SetStatus(codes.Error, res.Message)
	}
	return res
}

func (e *Executor) execute(ctx context.Context, rootDir string, instructions instruction.List, opts Options) *Result {
	if len(instructions) == 0 {
		RunsTotal.WithLabelValues("error").Inc()
		return failure(ErrNoInstructions, "no instructions")
	}

	root, err := filepath.Abs(rootDir)
	if err != nil {
		RunsTotal.WithLabelValues("error").Inc()
		return failure(fmt.Errorf("%w: %s", ErrNotDirectory, rootDir), fmt.Sprintf("invalid root directory: %s", rootDir))
	}
	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		RunsTotal.WithLabelValues("error").Inc()
		return failure(fmt.Errorf("%w: %s", ErrNotDirectory, root), fmt.Sprintf("root directory does not exist or is not a directory: %s", root))
	}

	logger := e.logger.With(zap.String("ticket_id", opts.TicketID), zap.String("root", root))
	b := &batch{
		root:      root,
		ticketID:  opts.TicketID,
		cfg:       &e.cfg,
		files:     newTracker(),
		gate:      e.deps.Gate,
		remote:    e.deps.Remote,
		whitelist: e.deps.Whitelist,
		sql:       e.deps.SQL,
		logger:    logger,
		now:       e.now,
	}

	logger.Info("applying instructions", zap.Strings("types", typeNames(instructions)))
	for i, in := range instructions {
		if err := applyOne(ctx, b, i, in); err != nil {
			return e.abort(b, err)
		}
	}

	written := b.files.paths()
	if len(written) == 0 {
		if b.remoteOps > 0 {
			RunsTotal.WithLabelValues("remote_only").Inc()
			logger.Info("remote operations applied", zap.Int("count", b.remoteOps))
			return &Result{
				Success:   true,
				Message:   fmt.Sprintf("applied %d remote operation(s)", b.remoteOps),
				RemoteOps: b.remoteOps,
				Approvals: b.approvals,
			}
		}
		RunsTotal.WithLabelValues("no_changes").Inc()
		logger.Info("no changes needed")
		return &Result{Success: true, Message: "no changes needed", Approvals: b.approvals}
	}

	if err := b.files.verify(); err != nil {
		return e.abort(b, err)
	}
	logger.Info("files written and verified", zap.Int("count", len(written)))

	res := &Result{
		Success:       true,
		ModifiedFiles: relPaths(root, written),
		RemoteOps:     b.remoteOps,
		Approvals:     b.approvals,
	}
	RunsTotal.WithLabelValues("applied").Inc()

	if e.cfg.SkipChecks {
		res.Message = fmt.Sprintf("applied (%d files written), checks skipped", len(written))
		return res
	}

	buildDir := e.buildDir(root)
	lintErr := e.step(ctx, "lint", buildDir, e.cfg.LintCommand, e.cfg.LintTimeout)
	if lintErr != nil {
		res.LintFailed = true
		res.Warnings = append(res.Warnings, lintErr.Error())
		logger.Warn("lint failed, files are kept", zap.Error(lintErr))
	}
	buildErr := e.step(ctx, "build", buildDir, e.cfg.BuildCommand, e.cfg.BuildTimeout)
	if buildErr != nil {
		res.BuildFailed = true
		res.Warnings = append(res.Warnings, buildErr.Error())
		logger.Error("build failed, files are kept", zap.Error(buildErr))
	}
	if err := e.step(ctx, "restart", root, e.cfg.RestartCommand, e.cfg.RestartTimeout); err != nil {
		logger.Warn("process restart failed", zap.Error(err))
	}

	switch {
	case buildErr != nil:
		res.Message = fmt.Sprintf("applied (%d files written), but build failed: %v", len(written), buildErr)
	case lintErr != nil:
		res.Message = fmt.Sprintf("applied (%d files written), but lint failed: %v", len(written), lintErr)
	default:
		res.Message = "applied and deployment refreshed"
	}
	logger.Info("instructions applied",
		zap.Int("modified_files", len(written)),
		zap.Bool("lint_failed", res.LintFailed),
		zap.Bool("build_failed", res.BuildFailed))
	return res
}

func applyOne(ctx context.Context, b *batch, i int, in instruction.Instruction) error {
	if in == nil {
		return &InstructionError{Index: i, Err: fmt.Errorf("%w: nil instruction", instruction.ErrInvalid)}
	}
	if err := in.Validate(); err != nil {
		InstructionsTotal.WithLabelValues(string(in.Type()), "failed").Inc()
		return &InstructionError{Index: i, Type: in.Type(), Err: err}
	}

	start := time.Now()
	err := instruction.Apply(ctx, b, in)
	if err != nil {
		InstructionsTotal.WithLabelValues(string(in.Type()), "failed").Inc()
		b.logger.Error("instruction failed",
			zap.Int("index", i),
			zap.String("type", string(in.Type())),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err))
		return &InstructionError{Index: i, Type: in.Type(), Err: err}
	}
	InstructionsTotal.WithLabelValues(string(in.Type()), "ok").Inc()
	b.logger.Debug("instruction applied",
		zap.Int("index", i),
		zap.String("type", string(in.Type())),
		zap.Duration("duration", time.Since(start)))
	return nil
}

// abort ends a batch. Write-phase failures restore every touched file;
// other failures leave files as written.
func (e *Executor) abort(b *batch, err error) *Result {
	if IsWriteError(err) {
		errs := b.files.rollback()
		RunsTotal.WithLabelValues("write_error").Inc()
		RollbacksTotal.Inc()
		res := failure(err, fmt.Sprintf("failed while writing files, changes rolled back: %v", err))
		res.RolledBack = true
		res.Approvals = b.approvals
		for _, rerr := range errs {
			res.Warnings = append(res.Warnings, fmt.Sprintf("rollback: %v", rerr))
		}
		b.logger.Error("write failed, files restored", zap.Error(err), zap.Int("rollback_errors", len(errs)))
		return res
	}

	switch {
	case errors.Is(err, ErrApprovalDenied):
		RunsTotal.WithLabelValues("approval_denied").Inc()
	case isRemoteFailure(err):
		RunsTotal.WithLabelValues("remote_error").Inc()
	default:
		RunsTotal.WithLabelValues("error").Inc()
	}
	res := failure(err, fmt.Sprintf("autofix failed: %v", err))
	res.ModifiedFiles = relPaths(b.root, b.files.paths())
	res.RemoteOps = b.remoteOps
	res.Approvals = b.approvals
	b.logger.Error("batch aborted, files are kept", zap.Error(err))
	return res
}

func (e *Executor) step(ctx context.Context, name, dir string, argv []string, timeout time.Duration) error {
	start := time.Now()
	err := runStep(ctx, e.deps.Runner, dir, argv, timeout)
	StepDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if err != nil {
		StepFailuresTotal.WithLabelValues(name).Inc()
	}
	return err
}

// buildDir is the frontend directory when it holds a package.json, else root.
func (e *Executor) buildDir(root string) string {
	dir := filepath.Join(root, e.cfg.FrontendDir)
	if _, err := os.Stat(filepath.Join(dir, "package.json")); err == nil {
		return dir
	}
	return root
}

func relPaths(root string, paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if r, err := filepath.Rel(root, p); err == nil {
			out = append(out, r)
			continue
		}
		out = append(out, p)
	}
	return out
}

func typeNames(l instruction.List) []string {
	out := make([]string, 0, len(l))
	for _, in := range l {
		if in != nil {
			out = append(out, string(in.Type()))
		}
	}
	return out
}
