// Package restore replays a backup directory onto a destination tenant,
// translating every name-based reference back to a destination id.
package restore

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/edvin/wafbackup/internal/config"
	"github.com/edvin/wafbackup/internal/metrics"
	"github.com/edvin/wafbackup/internal/ptaf"
	"github.com/edvin/wafbackup/internal/resolver"
	"github.com/edvin/wafbackup/internal/runner"
	"github.com/edvin/wafbackup/internal/store"
)

// ErrMissingReference means a name from the backup has no counterpart on the
// destination tenant.
var ErrMissingReference = errors.New("missing reference")

// Stages in execution order.
const (
	StageActions       = "actions"
	StageGlobalLists   = "global_lists"
	StageTemplates     = "templates"
	StageTemplateRules = "template_rules"
	StagePolicies      = "policies"
	StagePolicyRules   = "policy_rules"
)

// Skip reasons.
const (
	ReasonDuplicate = "duplicate"
	ReasonMissing   = "missing_reference"
)

// Skip is an object restore deliberately left alone.
type Skip struct {
	Stage  string
	Object string
	Reason string
	Detail string
}

type Result struct {
	Report  runner.Report
	Skipped []Skip
}

// Restore runs one restore against the destination tenant.
type Restore struct {
	Client   *ptaf.Client
	Resolver *resolver.Resolver
	Store    *store.Dir

	OnFailure          string
	OnMissingReference string
	Concurrency        int
	Logger             zerolog.Logger

	mu      sync.Mutex
	skipped []Skip
}

// New wires a restore from the run configuration and an unauthenticated
// client for the destination tenant.
func New(cfg *config.Config, client *ptaf.Client, logger zerolog.Logger) *Restore {
	logger = logger.With().Str("component", "restore").Logger()
	return &Restore{
		Client:             client,
		Resolver:           resolver.New(client, logger),
		Store:              store.NewDir(cfg.BackupDir),
		OnFailure:          cfg.OnFailure,
		OnMissingReference: cfg.OnMissingReference,
		Concurrency:        cfg.Concurrency,
		Logger:             logger,
	}
}

type stage struct {
	name string
	run  func(ctx context.Context) (runner.Report, error)
}

// Run executes the stages strictly in order. Every stage sees the objects
// created by the ones before it. A stage error (unreadable artifact,
// destination index unavailable) stops the run; unit failures stop it only
// with the abort policy.
func (r *Restore) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	r.Logger.Info().Str("dir", r.Store.Root).Msg("starting restore")

	if err := r.Client.Authenticate(ctx); err != nil {
		return nil, err
	}

	stages := []stage{
		{StageActions, r.restoreActions},
		{StageGlobalLists, r.restoreGlobalLists},
		{StageTemplates, r.restoreTemplates},
		{StageTemplateRules, r.restoreTemplateRules},
		{StagePolicies, r.restorePolicies},
		{StagePolicyRules, r.restorePolicyRules},
	}

	res := &Result{}
	for _, s := range stages {
		report, err := s.run(ctx)
		res.Report.Merge(report)
		if err != nil {
			res.Skipped = r.skips()
			return res, fmt.Errorf("restore %s: %w", s.name, err)
		}

		logger := r.Logger.With().Str("stage", s.name).Logger()
		failures := len(report.Failures())
		logger.Info().Int("units", len(report.Outcomes)).Int("failures", failures).Msg("stage finished")
		if failures > 0 && r.OnFailure == config.OnFailureAbort {
			res.Skipped = r.skips()
			return res, res.Report.Err()
		}
	}

	res.Skipped = r.skips()
	r.Logger.Info().
		Int("skipped", len(res.Skipped)).
		Int("failures", len(res.Report.Failures())).
		Dur("elapsed", time.Since(start)).
		Msg("restore finished")
	return res, res.Report.Err()
}

func (r *Restore) group(ctx context.Context) *runner.Group {
	return runner.NewGroup(ctx, r.OnFailure, r.Concurrency, r.Logger)
}

func (r *Restore) skip(s Skip) {
	r.mu.Lock()
	r.skipped = append(r.skipped, s)
	r.mu.Unlock()

	metrics.RestoreSkipped.WithLabelValues(s.Stage, s.Reason).Inc()
	r.Logger.Warn().
		Str("stage", s.Stage).
		Str("object", s.Object).
		Str("reason", s.Reason).
		Str("detail", s.Detail).
		Msg("skipped")
}

func (r *Restore) skips() []Skip {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Skip(nil), r.skipped...)
}

// lookup translates a name into a destination id. With the send policy a
// missing name yields a nil id and no error, so the payload carries null.
func (r *Restore) lookup(idx *resolver.Index, name string) (*string, error) {
	if id, ok := idx.ID(name); ok {
		if idx.Ambiguous(name) {
			r.Logger.Warn().Str("kind", idx.Kind()).Str("name", name).Str("id", id).Msg("ambiguous name, using the first match")
		}
		return &id, nil
	}
	if r.OnMissingReference == config.OnMissingSend {
		r.Logger.Warn().Str("kind", idx.Kind()).Str("name", name).Msg("no such object on destination, sending null")
		return nil, nil
	}
	return nil, fmt.Errorf("%s %q: %w", idx.Kind(), name, ErrMissingReference)
}

// created interprets the response of a create call: 422 is a duplicate and
// recorded as a skip, any other error fails the unit.
func (r *Restore) created(stageName, object string, err error) error {
	if ptaf.IsStatus(err, http.StatusUnprocessableEntity) {
		var se *ptaf.StatusError
		errors.As(err, &se)
		r.skip(Skip{Stage: stageName, Object: object, Reason: ReasonDuplicate, Detail: se.Body})
		return nil
	}
	return err
}
