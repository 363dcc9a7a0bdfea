package restore

import (
	"context"
	"errors"
	"fmt"

	"github.com/edvin/wafbackup/internal/config"
	"github.com/edvin/wafbackup/internal/model"
	"github.com/edvin/wafbackup/internal/paramtree"
	"github.com/edvin/wafbackup/internal/resolver"
	"github.com/edvin/wafbackup/internal/runner"
	"github.com/edvin/wafbackup/internal/store"
)

type rulePatch struct {
	Actions   []*string      `json:"actions"`
	Variables paramtree.Node `json:"variables"`
	Enabled   bool           `json:"enabled"`
}

// ruleTarget describes where the rules of one kind of container live on the
// destination.
type ruleTarget struct {
	stage      string
	containers *resolver.Index
	// vendorName returns the vendor template an entry's rules derive from.
	vendorName func(e *model.ContainerRules) string
	path       func(containerID, ruleID string) string
}

// refs are the destination indexes a rule payload is translated with.
type refs struct {
	actions *resolver.Index
	lists   *resolver.Index
	// rules maps a vendor template id to its rule index. Rule ids are shared
	// by a vendor template and everything derived from it.
	rules map[string]*resolver.Index
	// vendorRules picks the rule index for a vendor template name.
	vendorRules func(name string) *resolver.Index
}

func (r *Restore) restoreTemplateRules(ctx context.Context) (runner.Report, error) {
	var entries []*model.ContainerRules
	if err := r.Store.ReadJSON(store.TemplateRulesFile, &entries); err != nil {
		return runner.Report{}, err
	}
	templates, err := r.Resolver.Templates(ctx, model.OwnerUser)
	if err != nil {
		return runner.Report{}, err
	}

	return r.applyRules(ctx, entries, ruleTarget{
		stage:      StageTemplateRules,
		containers: templates,
		vendorName: func(e *model.ContainerRules) string { return e.BasedOnName },
		path: func(containerID, ruleID string) string {
			return fmt.Sprintf("/config/policies/templates/user/%s/rules/%s", containerID, ruleID)
		},
	})
}

func (r *Restore) restorePolicyRules(ctx context.Context) (runner.Report, error) {
	var entries []*model.ContainerRules
	if err := r.Store.ReadJSON(store.PolicyRulesFile, &entries); err != nil {
		return runner.Report{}, err
	}
	var templates []model.TemplateRecord
	if err := r.Store.ReadJSON(store.TemplatesFile, &templates); err != nil {
		return runner.Report{}, err
	}
	baseOf := make(map[string]string, len(templates))
	for _, t := range templates {
		if _, ok := baseOf[t.Name]; !ok {
			baseOf[t.Name] = t.BasedOnName
		}
	}
	policies, err := r.Resolver.Policies(ctx)
	if err != nil {
		return runner.Report{}, err
	}

	return r.applyRules(ctx, entries, ruleTarget{
		stage:      StagePolicyRules,
		containers: policies,
		vendorName: func(e *model.ContainerRules) string { return baseOf[e.BasedOnName] },
		path: func(containerID, ruleID string) string {
			return fmt.Sprintf("/config/policies/%s/rules/%s", containerID, ruleID)
		},
	})
}

func (r *Restore) applyRules(ctx context.Context, entries []*model.ContainerRules, target ruleTarget) (runner.Report, error) {
	var live []*model.ContainerRules
	for _, e := range entries {
		if e != nil {
			live = append(live, e)
		}
	}
	if len(live) == 0 {
		return runner.Report{}, nil
	}

	rf, err := r.loadRefs(ctx, live, target)
	if err != nil {
		return runner.Report{}, err
	}

	g := r.group(ctx)
	for _, e := range live {
		g.Go(string(e.Kind())+" rules", e.Name(), func(ctx context.Context) error {
			return r.applyContainer(ctx, e, target, rf)
		})
	}
	return g.Wait(), nil
}

// loadRefs reads the destination indexes once per stage, including the rule
// index of every vendor template the entries derive from. Unknown vendor
// templates fall back to the first one listed.
func (r *Restore) loadRefs(ctx context.Context, entries []*model.ContainerRules, target ruleTarget) (*refs, error) {
	vendors, err := r.Resolver.Templates(ctx, model.OwnerVendor)
	if err != nil {
		return nil, err
	}
	first, ok := vendors.First()
	if !ok {
		return nil, fmt.Errorf("destination has no vendor templates")
	}
	actions, err := r.Resolver.Actions(ctx)
	if err != nil {
		return nil, err
	}
	lists, err := r.Resolver.GlobalLists(ctx)
	if err != nil {
		return nil, err
	}

	vendorID := func(name string) string {
		if id, ok := vendors.ID(name); ok {
			return id
		}
		return first.ID
	}

	rf := &refs{actions: actions, lists: lists, rules: map[string]*resolver.Index{}}
	for _, e := range entries {
		name := target.vendorName(e)
		id := vendorID(name)
		if id == first.ID && name != first.Name {
			r.Logger.Warn().
				Str(string(e.Kind()), e.Name()).
				Str("based_on", name).
				Str("fallback", first.Name).
				Msg("vendor template not found, resolving rules against the first one")
		}
		if _, ok := rf.rules[id]; ok {
			continue
		}
		idx, err := r.Resolver.TemplateRules(ctx, model.OwnerVendor, id)
		if err != nil {
			return nil, err
		}
		rf.rules[id] = idx
	}
	rf.vendorRules = func(name string) *resolver.Index { return rf.rules[vendorID(name)] }
	return rf, nil
}

// applyContainer patches every rule of one entry. A missing container or
// rule cannot be addressed and is always skipped.
func (r *Restore) applyContainer(ctx context.Context, e *model.ContainerRules, target ruleTarget, rf *refs) error {
	containerID, ok := target.containers.ID(e.Name())
	if !ok {
		r.skip(Skip{Stage: target.stage, Object: e.Name(), Reason: ReasonMissing,
			Detail: fmt.Sprintf("%s %q: %v", target.containers.Kind(), e.Name(), ErrMissingReference)})
		return nil
	}
	ruleIdx := rf.vendorRules(target.vendorName(e))

	var errs []error
	applied := 0
	for _, rule := range e.Rules {
		object := e.Name() + "/" + rule.RuleName

		ruleID, ok := ruleIdx.ID(rule.RuleName)
		if !ok {
			r.skip(Skip{Stage: target.stage, Object: object, Reason: ReasonMissing,
				Detail: fmt.Sprintf("rule %q: %v", rule.RuleName, ErrMissingReference)})
			continue
		}

		patch, err := r.translate(rule, rf)
		if errors.Is(err, ErrMissingReference) {
			r.skip(Skip{Stage: target.stage, Object: object, Reason: ReasonMissing, Detail: err.Error()})
			continue
		}

		if _, err := r.Client.PatchJSON(ctx, target.path(containerID, ruleID), patch); err != nil {
			err = fmt.Errorf("rule %q: %w", rule.RuleName, err)
			if r.OnFailure == config.OnFailureAbort {
				return err
			}
			errs = append(errs, err)
			continue
		}
		applied++
	}

	r.Logger.Info().Str(string(e.Kind()), e.Name()).Int("applied", applied).Int("rules", len(e.Rules)).Msg("rules restored")
	return errors.Join(errs...)
}

// translate maps the names in a backed-up rule to destination ids.
func (r *Restore) translate(rule model.RuleOverride, rf *refs) (rulePatch, error) {
	actions := make([]*string, 0, len(rule.Actions))
	for _, name := range rule.Actions {
		id, err := r.lookup(rf.actions, name)
		if err != nil {
			return rulePatch{}, err
		}
		actions = append(actions, id)
	}

	variables, misses := paramtree.Rewrite(rule.Variables, rf.lists.IDMapper())
	if len(misses) > 0 {
		if r.OnMissingReference != config.OnMissingSend {
			return rulePatch{}, fmt.Errorf("global list %q: %w", misses[0], ErrMissingReference)
		}
		r.Logger.Warn().Str("rule", rule.RuleName).Strs("lists", misses).Msg("global lists not found on destination, sending names")
	}

	return rulePatch{Actions: actions, Variables: variables, Enabled: rule.IsActive}, nil
}
