// Package backup captures the user configuration of a source tenant into a
// backup directory: user templates, overridden rules of templates and
// policies, global lists and user actions, all referenced by name.
package backup

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/edvin/wafbackup/internal/config"
	"github.com/edvin/wafbackup/internal/model"
	"github.com/edvin/wafbackup/internal/overrides"
	"github.com/edvin/wafbackup/internal/ptaf"
	"github.com/edvin/wafbackup/internal/resolver"
	"github.com/edvin/wafbackup/internal/runner"
	"github.com/edvin/wafbackup/internal/store"
)

// Unit kinds as they appear in reports and the manifest.
const (
	UnitTemplateRules = "template rules"
	UnitPolicyRules   = "policy rules"
	UnitGlobalList    = "global list"
	UnitUserActions   = "user actions"
)

// Backup runs one backup against the source tenant.
type Backup struct {
	Client   *ptaf.Client
	Resolver *resolver.Resolver
	Store    *store.Dir
	// Archiver is optional; a nil archiver keeps the backup local.
	Archiver *store.Archiver

	SourceHost  string
	UIURL       string
	OnFailure   string
	Concurrency int
	Logger      zerolog.Logger

	now func() time.Time
}

// Result summarizes a finished run.
type Result struct {
	Counts map[string]int
	Report runner.Report
	// ArchivePrefix is the S3 key prefix the backup was uploaded to, if any.
	ArchivePrefix string
}

// New wires a backup from the run configuration and an unauthenticated
// client for the source tenant.
func New(cfg *config.Config, client *ptaf.Client, logger zerolog.Logger) *Backup {
	logger = logger.With().Str("component", "backup").Logger()
	return &Backup{
		Client:      client,
		Resolver:    resolver.New(client, logger),
		Store:       store.NewDir(cfg.BackupDir),
		Archiver:    store.NewArchiver(cfg.S3, logger),
		SourceHost:  cfg.Source.Host,
		UIURL:       cfg.Source.UIURL(),
		OnFailure:   cfg.OnFailure,
		Concurrency: cfg.Concurrency,
		Logger:      logger,
	}
}

// sources holds everything fetched before the per-container work starts.
type sources struct {
	templates   []model.UserTemplate
	policies    []model.Policy
	actions     []model.Action
	lists       []model.GlobalList
	actionIdx   *resolver.Index
	listIdx     *resolver.Index
	actionTypes *resolver.Index
}

// Run authenticates, collects every artifact and writes the backup directory.
// Per-unit failures are collected in the report; the returned error joins
// them. Artifacts of units that succeeded are written either way.
func (b *Backup) Run(ctx context.Context) (*Result, error) {
	started := b.clock()
	b.Logger.Info().Str("dir", b.Store.Root).Msg("starting backup")

	if err := b.Client.Authenticate(ctx); err != nil {
		return nil, err
	}

	src, err := b.fetch(ctx)
	if err != nil {
		return nil, err
	}

	records, err := b.templateRecords(ctx, src.templates)
	if err != nil {
		return nil, err
	}
	if err := b.Store.WriteJSON(store.TemplatesFile, records); err != nil {
		return nil, err
	}

	res := &Result{Counts: map[string]int{store.TemplatesFile: len(records)}}

	detector := &overrides.Detector{
		Client:   b.Client,
		Resolver: b.Resolver,
		Actions:  src.actionIdx,
		Lists:    src.listIdx,
		UIURL:    b.UIURL,
		Logger:   b.Logger,
	}

	var (
		templateRules = make([]*model.ContainerRules, len(src.templates))
		policyRules   = make([]*model.ContainerRules, len(src.policies))
	)

	g := runner.NewGroup(ctx, b.OnFailure, b.Concurrency, b.Logger)
	for i, t := range src.templates {
		g.Go(UnitTemplateRules, t.Name, func(ctx context.Context) error {
			rules, err := detector.Collect(ctx, overrides.TemplateContainer(t))
			templateRules[i] = rules
			return err
		})
	}
	for i, p := range src.policies {
		g.Go(UnitPolicyRules, p.Name, func(ctx context.Context) error {
			rules, err := detector.Collect(ctx, overrides.PolicyContainer(p))
			policyRules[i] = rules
			return err
		})
	}
	for _, l := range src.lists {
		if l.Type != model.ListTypeStatic {
			continue
		}
		g.Go(UnitGlobalList, l.Name, func(ctx context.Context) error {
			return b.saveListFile(ctx, l)
		})
	}
	g.Go(UnitUserActions, "", func(ctx context.Context) error {
		actions := b.userActions(src.actions, src.actionTypes)
		res.Counts[store.UserActionsFile] = len(actions)
		return b.Store.WriteJSON(store.UserActionsFile, actions)
	})
	res.Report = g.Wait()

	if err := b.Store.WriteJSON(store.TemplateRulesFile, templateRules); err != nil {
		return nil, err
	}
	if err := b.Store.WriteJSON(store.PolicyRulesFile, policyRules); err != nil {
		return nil, err
	}
	listRecords := make([]model.GlobalListRecord, 0, len(src.lists))
	for _, l := range src.lists {
		listRecords = append(listRecords, model.GlobalListRecord{ListName: l.Name, ListType: l.Type})
	}
	if err := b.Store.WriteJSON(store.GlobalListsFile, listRecords); err != nil {
		return nil, err
	}

	res.Counts[store.TemplateRulesFile] = countRules(templateRules)
	res.Counts[store.PolicyRulesFile] = countRules(policyRules)
	res.Counts[store.GlobalListsFile] = len(listRecords)

	manifest := store.Manifest{
		SourceHost: b.SourceHost,
		StartedAt:  started.UTC(),
		FinishedAt: b.clock().UTC(),
		Counts:     res.Counts,
	}
	for _, o := range res.Report.Failures() {
		manifest.Failures = append(manifest.Failures, fmt.Sprintf("%s: %v", o.Unit(), o.Err))
	}
	if err := b.Store.WriteManifest(manifest); err != nil {
		return nil, err
	}

	if b.Archiver != nil {
		prefix, err := b.Archiver.Upload(ctx, b.Store.Root, started.UTC().Format("20060102T150405Z"))
		if err != nil {
			return res, err
		}
		res.ArchivePrefix = prefix
	}

	b.Logger.Info().
		Interface("counts", res.Counts).
		Int("failures", len(manifest.Failures)).
		Dur("elapsed", b.clock().Sub(started)).
		Msg("backup finished")
	return res, res.Report.Err()
}

// fetch lists and details user templates and policies and builds the source
// indexes, all concurrently. Any failure here leaves nothing to back up.
func (b *Backup) fetch(ctx context.Context) (*sources, error) {
	src := &sources{}
	g, ctx := errgroup.WithContext(ctx)
	if b.Concurrency > 0 {
		g.SetLimit(b.Concurrency)
	}

	g.Go(func() error {
		var err error
		src.templates, err = details[model.UserTemplate](ctx, b.Client, "/config/policies/templates/user", b.Concurrency)
		return err
	})
	g.Go(func() error {
		var err error
		src.policies, err = details[model.Policy](ctx, b.Client, "/config/policies", b.Concurrency)
		return err
	})
	g.Go(func() error {
		var err error
		src.actions, err = ptaf.List[model.Action](ctx, b.Client, "/config/actions")
		if err != nil {
			return fmt.Errorf("list actions: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		src.lists, err = ptaf.List[model.GlobalList](ctx, b.Client, "/config/global_lists")
		if err != nil {
			return fmt.Errorf("list global lists: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		src.actionTypes, err = b.Resolver.ActionTypes(ctx)
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	src.actionIdx = b.Resolver.Build("action", named(src.actions, func(a model.Action) model.NamedItem {
		return model.NamedItem{ID: a.ID, Name: a.Name}
	}))
	src.listIdx = b.Resolver.Build("global list", named(src.lists, func(l model.GlobalList) model.NamedItem {
		return model.NamedItem{ID: l.ID, Name: l.Name}
	}))

	b.Logger.Info().
		Int("templates", len(src.templates)).
		Int("policies", len(src.policies)).
		Int("actions", len(src.actions)).
		Int("global_lists", len(src.lists)).
		Msg("source objects listed")
	return src, nil
}

func named[T any](items []T, item func(T) model.NamedItem) []model.NamedItem {
	out := make([]model.NamedItem, 0, len(items))
	for _, it := range items {
		out = append(out, item(it))
	}
	return out
}

// details lists the collection at path and fetches every item's detail.
// Output order follows the listing.
func details[T any](ctx context.Context, c *ptaf.Client, path string, limit int) ([]T, error) {
	refs, err := ptaf.List[model.NamedItem](ctx, c, path)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", path, err)
	}

	out := make([]T, len(refs))
	g, ctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, ref := range refs {
		g.Go(func() error {
			if err := c.GetJSON(ctx, path+"/"+ref.ID, &out[i]); err != nil {
				return fmt.Errorf("get %q: %w", ref.Name, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (b *Backup) templateRecords(ctx context.Context, templates []model.UserTemplate) ([]model.TemplateRecord, error) {
	records := make([]model.TemplateRecord, len(templates))
	g, ctx := errgroup.WithContext(ctx)
	if b.Concurrency > 0 {
		g.SetLimit(b.Concurrency)
	}
	for i, t := range templates {
		g.Go(func() error {
			base, err := b.Resolver.TemplateName(ctx, model.OwnerVendor, t.VendorTemplateID())
			if err != nil {
				return fmt.Errorf("base template of %q: %w", t.Name, err)
			}
			records[i] = model.TemplateRecord{Name: t.Name, HasUserRules: t.HasUserRules, BasedOnName: base}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return records, nil
}

func (b *Backup) saveListFile(ctx context.Context, l model.GlobalList) error {
	content, err := b.Client.GetText(ctx, fmt.Sprintf("/config/global_lists/%s/file", l.ID))
	if err != nil {
		return fmt.Errorf("download list file: %w", err)
	}
	return b.Store.WriteList(l.Name, content)
}

// userActions keeps the actions created by users. Action types are stored by
// name; an unknown type keeps its id.
func (b *Backup) userActions(actions []model.Action, types *resolver.Index) []model.ActionRecord {
	out := make([]model.ActionRecord, 0, len(actions))
	for _, a := range actions {
		if a.IsSystem {
			continue
		}
		typeName, ok := types.Name(a.TypeID)
		if !ok {
			b.Logger.Warn().Str("action", a.Name).Str("type_id", a.TypeID).Msg("unknown action type, keeping its id")
			typeName = a.TypeID
		}
		out = append(out, model.ActionRecord{ActionName: a.Name, ActionType: typeName, ActionParams: a.Params})
	}
	return out
}

func countRules(entries []*model.ContainerRules) int {
	n := 0
	for _, e := range entries {
		if e != nil {
			n += len(e.Rules)
		}
	}
	return n
}

func (b *Backup) clock() time.Time {
	if b.now != nil {
		return b.now()
	}
	return time.Now()
}
