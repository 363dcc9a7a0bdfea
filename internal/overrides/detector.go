// Package overrides finds the rules of a template or policy that differ from
// the vendor baseline and converts them into their portable, name-based form.
package overrides

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/edvin/wafbackup/internal/metrics"
	"github.com/edvin/wafbackup/internal/model"
	"github.com/edvin/wafbackup/internal/paramtree"
	"github.com/edvin/wafbackup/internal/ptaf"
	"github.com/edvin/wafbackup/internal/resolver"
)

// Container is a template or policy whose rules are inspected.
type Container struct {
	Kind model.ContainerKind
	ID   string
	Name string
	// BaseID is the vendor template of a user template, or the user
	// template of a policy.
	BaseID string
}

func TemplateContainer(t model.UserTemplate) Container {
	return Container{Kind: model.ContainerTemplate, ID: t.ID, Name: t.Name, BaseID: t.VendorTemplateID()}
}

func PolicyContainer(p model.Policy) Container {
	return Container{Kind: model.ContainerPolicy, ID: p.ID, Name: p.Name, BaseID: p.TemplateID}
}

func (c Container) RulesPath() string {
	if c.Kind == model.ContainerPolicy {
		return fmt.Sprintf("/config/policies/%s/rules", c.ID)
	}
	return fmt.Sprintf("/config/policies/templates/user/%s/rules", c.ID)
}

func (c Container) baseOwner() string {
	if c.Kind == model.ContainerPolicy {
		return model.OwnerUser
	}
	return model.OwnerVendor
}

func (c Container) ruleLink(uiURL, ruleID string) string {
	if c.Kind == model.ContainerPolicy {
		return fmt.Sprintf("%s/conf-scheme/application_policy/%s/rules/rule/%s", uiURL, c.ID, ruleID)
	}
	return fmt.Sprintf("%s/conf-scheme/user_policy/%s/rules/rule/%s", uiURL, c.ID, ruleID)
}

func (c Container) baseLink(uiURL string) string {
	if c.Kind == model.ContainerPolicy {
		return fmt.Sprintf("%s/conf-scheme/user_policy/%s", uiURL, c.BaseID)
	}
	return fmt.Sprintf("%s/conf-scheme/vendor_policy/%s", uiURL, c.BaseID)
}

// Filter keeps exactly the rules for which IsOverride holds, in order.
func Filter(rules []model.RuleDetail) []model.RuleDetail {
	var out []model.RuleDetail
	for _, r := range rules {
		if r.IsOverride() {
			out = append(out, r)
		}
	}
	return out
}

// Detector collects rule overrides from the source tenant. Actions and Lists
// are the source tenant's indexes, used to replace ids by names.
type Detector struct {
	Client   *ptaf.Client
	Resolver *resolver.Resolver
	Actions  *resolver.Index
	Lists    *resolver.Index
	// UIURL is the source console root, used for informational links.
	UIURL  string
	Logger zerolog.Logger
}

// Collect returns the overridden rules of c, or nil when it has none.
func (d *Detector) Collect(ctx context.Context, c Container) (*model.ContainerRules, error) {
	logger := d.Logger.With().Str(string(c.Kind), c.Name).Logger()
	logger.Info().Msg("collecting overridden rules")

	refs, err := ptaf.List[model.NamedItem](ctx, d.Client, c.RulesPath())
	if err != nil {
		return nil, fmt.Errorf("list rules of %s %q: %w", c.Kind, c.Name, err)
	}

	var rules []model.RuleOverride
	for _, ref := range refs {
		var detail model.RuleDetail
		if err := d.Client.GetJSON(ctx, c.RulesPath()+"/"+ref.ID, &detail); err != nil {
			return nil, fmt.Errorf("get rule %q of %s %q: %w", ref.Name, c.Kind, c.Name, err)
		}
		if !detail.IsOverride() {
			continue
		}
		rules = append(rules, d.portable(c, ref.ID, detail, logger))
	}

	if len(rules) == 0 {
		logger.Debug().Int("rules", len(refs)).Msg("no overridden rules")
		return nil, nil
	}

	baseName, err := d.Resolver.TemplateName(ctx, c.baseOwner(), c.BaseID)
	if err != nil {
		return nil, fmt.Errorf("resolve base template of %s %q: %w", c.Kind, c.Name, err)
	}

	out := &model.ContainerRules{
		BasedOnName: baseName,
		BasedOnLink: c.baseLink(d.UIURL),
		Rules:       rules,
	}
	if c.Kind == model.ContainerPolicy {
		out.PolicyName = c.Name
	} else {
		out.TemplateName = c.Name
	}

	metrics.RulesBackedUp.WithLabelValues(string(c.Kind)).Add(float64(len(rules)))
	logger.Info().Int("overridden", len(rules)).Int("rules", len(refs)).Msg("collected overridden rules")
	return out, nil
}

func (d *Detector) portable(c Container, ruleID string, r model.RuleDetail, logger zerolog.Logger) model.RuleOverride {
	actions := make([]string, 0, len(r.Actions))
	for _, id := range r.Actions {
		name, ok := d.Actions.Name(id)
		if !ok {
			logger.Warn().Str("rule", r.Name).Str("action_id", id).Msg("unknown action, keeping its id")
			name = id
		}
		actions = append(actions, name)
	}

	variables, misses := paramtree.Rewrite(r.Variables, d.Lists.NameMapper())
	for _, id := range misses {
		logger.Warn().Str("rule", r.Name).Str("list_id", id).Msg("unknown global list, keeping its id")
	}

	return model.RuleOverride{
		RuleName:  r.Name,
		RuleLink:  c.ruleLink(d.UIURL, ruleID),
		IsActive:  r.Enabled,
		Actions:   actions,
		Variables: variables,
	}
}
