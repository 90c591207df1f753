package configanalyzer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/autopatchd/internal/autopatch"
	"github.com/fyrsmithlabs/autopatchd/internal/instruction"
	"github.com/fyrsmithlabs/autopatchd/internal/knowledge"
	"github.com/fyrsmithlabs/autopatchd/internal/pattern"
	"github.com/fyrsmithlabs/autopatchd/internal/ticket"
)

const instrumentationName = "github.com/fyrsmithlabs/autopatchd/internal/configanalyzer"

// Queries are the corpus topics configurations are mined from.
var Queries = []string{
	"deployment configuration environment variables",
	"API endpoints routes",
	"database schema settings",
	"frontend configuration",
	"payment checkout stripe apple pay",
	"checkout form payment method",
	"apple pay google pay",
}

const customerMessage = "Ich habe das Problem erkannt und behebe es jetzt automatisch. Sobald der Fix aktiv ist, melde ich mich wieder bei Ihnen."

// Config configures an Analyzer.
type Config struct {
	// Root is the target source tree. When empty no on-disk state is
	// captured and routes are always created.
	Root string

	Threshold         float64       // default DefaultThreshold
	QueryLimit        int           // default 10
	MaxDisambiguation int           // default 5
	CacheSize         int           // default 64, negative disables
	CacheTTL          time.Duration // default 5m
}

func (c *Config) applyDefaults() {
	if c.Threshold <= 0 {
		c.Threshold = DefaultThreshold
	}
	if c.QueryLimit <= 0 {
		c.QueryLimit = 10
	}
	if c.MaxDisambiguation <= 1 {
		c.MaxDisambiguation = 5
	}
	if c.CacheSize == 0 {
		c.CacheSize = 64
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = 5 * time.Minute
	}
}

// Deps are the analyzer's collaborators. Only Corpus is required; without
// it Match never matches.
type Deps struct {
	Corpus        knowledge.Corpus
	Disambiguator Disambiguator
	Workspace     WorkspaceInspector
}

// Analyzer matches tickets against corpus-derived configurations.
type Analyzer struct {
	cfg           Config
	corpus        knowledge.Corpus
	disambiguator Disambiguator
	workspace     WorkspaceInspector
	cache         *queryCache
	logger        *zap.Logger
	tracer        trace.Tracer
}

// New creates an Analyzer.
func New(cfg Config, deps Deps, logger *zap.Logger) *Analyzer {
	cfg.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Disambiguator == nil {
		deps.Disambiguator = NopDisambiguator{}
	}
	return &Analyzer{
		cfg:           cfg,
		corpus:        deps.Corpus,
		disambiguator: deps.Disambiguator,
		workspace:     deps.Workspace,
		cache:         newQueryCache(cfg.CacheSize, cfg.CacheTTL),
		logger:        logger,
		tracer:        otel.Tracer(instrumentationName),
	}
}

// Invalidate drops cached corpus results, e.g. after a re-index.
func (a *Analyzer) Invalidate() {
	a.cache.purge()
}

// Configurations queries the corpus and extracts configurations. Failing
// queries are skipped; an error is returned only when every query failed.
func (a *Analyzer) Configurations(ctx context.Context) ([]Configuration, error) {
	if a.corpus == nil {
		return nil, nil
	}
	var (
		docs     []knowledge.Document
		seen     = make(map[string]struct{})
		lastErr  error
		failures int
	)
	for _, q := range Queries {
		res, err := a.query(ctx, q)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			a.logger.Warn("corpus query failed", zap.String("query", q), zap.Error(err))
			lastErr = err
			failures++
			continue
		}
		for _, d := range res {
			if _, dup := seen[d.ID]; dup && d.ID != "" {
				continue
			}
			seen[d.ID] = struct{}{}
			docs = append(docs, d)
		}
	}
	if failures == len(Queries) {
		return nil, lastErr
	}
	return Extract(docs), nil
}

func (a *Analyzer) query(ctx context.Context, q string) ([]knowledge.Document, error) {
	if docs, ok := a.cache.get(q); ok {
		QueryCacheTotal.WithLabelValues("hit").Inc()
		return docs, nil
	}
	QueryCacheTotal.WithLabelValues("miss").Inc()

	docs, err := a.corpus.Query(ctx, q, a.cfg.QueryLimit)
	if err != nil {
		return nil, fmt.Errorf("query %q: %w", q, err)
	}
	a.cache.put(q, docs)
	return docs, nil
}

// Rank returns the configurations scoring at or above the threshold for t,
// best first.
func (a *Analyzer) Rank(ctx context.Context, t *ticket.Ticket) ([]Scored, error) {
	cfgs, err := a.Configurations(ctx)
	if err != nil {
		return nil, err
	}
	return rank(newText(t.Text()), cfgs, a.cfg.Threshold), nil
}

// Match returns a candidate for the best matching configuration, or nil.
// Errors are logged and reported as no match.
func (a *Analyzer) Match(ctx context.Context, t *ticket.Ticket) (c *autopatch.Candidate) {
	if t == nil || a.corpus == nil {
		return nil
	}
	ctx, span := a.tracer.Start(ctx, "configanalyzer.Match",
		trace.WithAttributes(attribute.String("ticket.id", t.ID)))
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("configuration analysis panicked",
				zap.String("ticket_id", t.ID), zap.Any("panic", r))
			span.SetStatus(codes.Error, "panic")
			MatchesTotal.WithLabelValues("error").Inc()
			c = nil
		}
	}()

	ranked, err := a.Rank(ctx, t)
	if err != nil {
		a.logger.Warn("configuration analysis failed", zap.String("ticket_id", t.ID), zap.Error(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		MatchesTotal.WithLabelValues("error").Inc()
		return nil
	}
	if len(ranked) == 0 {
		MatchesTotal.WithLabelValues("no_match").Inc()
		return nil
	}

	best := a.choose(ctx, t, ranked)
	ins := synthesize(best.Configuration, t.Text(), a.cfg.Root)
	c = a.candidate(ctx, best, ins)

	span.SetAttributes(
		attribute.String("config.type", string(best.Type)),
		attribute.String("config.name", best.Name),
		attribute.Float64("config.score", best.Score),
		attribute.Int("instructions", len(ins)),
	)
	a.logger.Info("configuration matched",
		zap.String("ticket_id", t.ID),
		zap.String("type", string(best.Type)),
		zap.String("name", best.Name),
		zap.Float64("score", best.Score),
		zap.Int("instructions", len(ins)))
	MatchesTotal.WithLabelValues("matched").Inc()
	return c
}

// choose asks the disambiguator to pick among the top candidates and falls
// back to the highest score.
func (a *Analyzer) choose(ctx context.Context, t *ticket.Ticket, ranked []Scored) Scored {
	if len(ranked) < 2 {
		return ranked[0]
	}
	top := ranked[:min(len(ranked), a.cfg.MaxDisambiguation)]
	cfgs := make([]Configuration, len(top))
	for i, s := range top {
		cfgs[i] = s.Configuration
	}

	choice, ok, err := a.disambiguator.Disambiguate(ctx, t, cfgs)
	if err != nil {
		a.logger.Debug("disambiguation failed", zap.String("ticket_id", t.ID), zap.Error(err))
		return ranked[0]
	}
	if !ok {
		return ranked[0]
	}
	for _, s := range top {
		if s.key() == choice.key() {
			return s
		}
	}
	a.logger.Debug("disambiguator chose an unknown configuration",
		zap.String("ticket_id", t.ID), zap.String("name", choice.Name))
	return ranked[0]
}

func (a *Analyzer) candidate(ctx context.Context, s Scored, ins []instruction.Instruction) *autopatch.Candidate {
	c := s.Configuration
	summary := fmt.Sprintf("Autopatch: correct %s configuration (%s).", c.Name, c.Type)

	steps := make([]string, 0, len(c.FixStrategies)+2)
	if len(s.MatchedKeywords) > 0 {
		steps = append(steps, "Problem indicators: "+strings.Join(s.MatchedKeywords, ", "))
	}
	steps = append(steps, "Check "+c.Location)
	steps = append(steps, c.FixStrategies...)

	plan := autopatch.PlanPayload{
		FixName:     "fix-" + c.Name,
		Goal:        fmt.Sprintf("Correct %s: %s", c.Name, c.Description),
		TargetFiles: []string{c.Location},
		Steps:       steps,
		Validation:  validation(c),
		Rollout:     rollout(c.Type),
		SystemState: a.captureState(ctx, c),
	}

	return &autopatch.Candidate{
		PatternID:       "config-" + string(c.Type) + "-" + autopatch.Slug(c.Name, autopatch.MaxFixNameLength),
		Summary:         summary,
		CustomerMessage: customerMessage,
		Actions:         []autopatch.Action{autopatch.NewPlanAction(summary, plan)},
		Instructions:    instruction.List(ins),
	}
}

func validation(c Configuration) []string {
	switch c.Type {
	case TypeEnvVar:
		return []string{
			"Confirm " + c.Name + " is set in " + defaultEnvFile,
			"Reproduce the ticket scenario after the restart",
		}
	case TypeAPIEndpoint:
		return []string{
			"Call " + c.Name + " and expect a 2xx response",
			"Check the server logs for errors from the route",
		}
	case TypeDatabaseSetting:
		return []string{
			"Repeat the failing action as an authenticated user",
			"Confirm the policy is listed in pg_policies",
		}
	case TypeDeploymentConfig:
		return []string{
			"`pm2 status` shows the service online",
			"The bot answers a test message",
		}
	}
	return []string{
		"`npm run build` succeeds",
		"Reproduce the ticket scenario in the browser",
	}
}

func rollout(t ConfigType) []string {
	if t == TypeDeploymentConfig || t == TypeDatabaseSetting {
		return []string{"Apply after operator approval", "Monitor the logs for ten minutes"}
	}
	return []string{"`npm run build`", "`pm2 restart " + pattern.AppName + " --update-env`"}
}
