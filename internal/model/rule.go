package model

import "github.com/edvin/wafbackup/internal/paramtree"

// RuleDetail is a rule of a template or policy as returned by the detail endpoint.
type RuleDetail struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Enabled      bool           `json:"enabled"`
	HasOverrides bool           `json:"has_overrides"`
	IsSystem     bool           `json:"is_system"`
	Actions      []string       `json:"actions"`
	Variables    paramtree.Node `json:"variables"`
}

// IsOverride reports whether the rule is a vendor rule the user has changed.
// Only these rules are worth backing up; everything else is either a vendor
// default or user-authored.
func (r RuleDetail) IsOverride() bool {
	return r.HasOverrides && r.IsSystem
}

// RuleOverride is the backed-up form of an overridden rule. Actions and list
// references inside Variables are stored by name.
type RuleOverride struct {
	RuleName  string         `json:"rule_name"`
	RuleLink  string         `json:"rule_link"`
	IsActive  bool           `json:"is_active"`
	Actions   []string       `json:"actions"`
	Variables paramtree.Node `json:"variables"`
}

type ContainerKind string

const (
	ContainerTemplate ContainerKind = "template"
	ContainerPolicy   ContainerKind = "policy"
)

// ContainerRules groups the overridden rules of one template or policy.
// Exactly one of TemplateName and PolicyName is set.
type ContainerRules struct {
	TemplateName string         `json:"template_name,omitempty"`
	PolicyName   string         `json:"policy_name,omitempty"`
	BasedOnName  string         `json:"based_on_name"`
	BasedOnLink  string         `json:"based_on_link"`
	Rules        []RuleOverride `json:"rules"`
}

func (c ContainerRules) Kind() ContainerKind {
	if c.PolicyName != "" {
		return ContainerPolicy
	}
	return ContainerTemplate
}

func (c ContainerRules) Name() string {
	if c.PolicyName != "" {
		return c.PolicyName
	}
	return c.TemplateName
}
