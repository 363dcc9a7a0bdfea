package overrides

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edvin/wafbackup/internal/model"
	"github.com/edvin/wafbackup/internal/resolver"
	"github.com/edvin/wafbackup/internal/waftest"
)

func TestFilter(t *testing.T) {
	rules := []model.RuleDetail{
		{Name: "a", HasOverrides: true, IsSystem: true},
		{Name: "b", HasOverrides: false, IsSystem: true},
		{Name: "c", HasOverrides: true, IsSystem: false},
		{Name: "d", HasOverrides: true, IsSystem: true},
	}

	got := Filter(rules)

	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].Name)
	assert.Equal(t, "d", got[1].Name)
	for _, r := range got {
		assert.True(t, r.IsOverride())
	}
	assert.Empty(t, Filter(nil))
}

func TestContainer_Paths(t *testing.T) {
	tpl := TemplateContainer(model.UserTemplate{ID: "t1", Name: "T1", Templates: []string{"v1"}})
	assert.Equal(t, "/config/policies/templates/user/t1/rules", tpl.RulesPath())
	assert.Equal(t, "https://waf/conf-scheme/user_policy/t1/rules/rule/r1", tpl.ruleLink("https://waf", "r1"))
	assert.Equal(t, "https://waf/conf-scheme/vendor_policy/v1", tpl.baseLink("https://waf"))

	pol := PolicyContainer(model.Policy{ID: "p1", Name: "P1", TemplateID: "t1"})
	assert.Equal(t, "/config/policies/p1/rules", pol.RulesPath())
	assert.Equal(t, "https://waf/conf-scheme/application_policy/p1/rules/rule/r1", pol.ruleLink("https://waf", "r1"))
	assert.Equal(t, "https://waf/conf-scheme/user_policy/t1", pol.baseLink("https://waf"))
}

type fixture struct {
	tenant   *waftest.Tenant
	detector *Detector
	vendorID string
	tplID    string
	actionID string
	listID   string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ft := waftest.NewTenant()
	typeID := ft.AddActionType("block")
	actionID := ft.AddAction("A1", typeID, false, `{}`)
	listID := ft.AddGlobalList("L1", model.ListTypeStatic, "10.0.0.1\n")
	vendorID := ft.AddVendorTemplate("Base",
		waftest.VendorRule("R1", waftest.MustTree(`{"ip":{"global_param_type":"list","value":[]}}`)),
		waftest.VendorRule("R2", waftest.MustTree(`{}`)),
	)
	tplID := ft.AddUserTemplate("T1", vendorID)
	ft.Start(t)

	client := ft.Client(t)
	res := resolver.New(client, zerolog.Nop())
	ctx := context.Background()
	actions, err := res.Actions(ctx)
	require.NoError(t, err)
	lists, err := res.GlobalLists(ctx)
	require.NoError(t, err)

	return &fixture{
		tenant: ft,
		detector: &Detector{
			Client:   client,
			Resolver: res,
			Actions:  actions,
			Lists:    lists,
			UIURL:    ft.Config().UIURL(),
			Logger:   zerolog.Nop(),
		},
		vendorID: vendorID,
		tplID:    tplID,
		actionID: actionID,
		listID:   listID,
	}
}

func TestDetector_CollectNoOverrides(t *testing.T) {
	f := newFixture(t)
	tpl, _ := f.tenant.UserTemplate("T1")

	got, err := f.detector.Collect(context.Background(), TemplateContainer(tpl))
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestDetector_CollectIgnoresUserRules(t *testing.T) {
	f := newFixture(t)
	f.tenant.AddUserRule(f.tplID, "custom")
	tpl, _ := f.tenant.UserTemplate("T1")

	got, err := f.detector.Collect(context.Background(), TemplateContainer(tpl))
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestDetector_CollectTemplate(t *testing.T) {
	f := newFixture(t)
	vars := waftest.MustTree(`{"ip":{"global_param_type":"list","value":["` + f.listID + `"]},"limit":5}`)
	f.tenant.OverrideRule(f.tplID, "R1", false, []string{f.actionID}, vars)
	tpl, _ := f.tenant.UserTemplate("T1")
	rule, _ := f.tenant.Rule(f.tplID, "R1")

	got, err := f.detector.Collect(context.Background(), TemplateContainer(tpl))
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, "T1", got.TemplateName)
	assert.Empty(t, got.PolicyName)
	assert.Equal(t, "Base", got.BasedOnName)
	assert.Equal(t, f.detector.UIURL+"/conf-scheme/vendor_policy/"+f.vendorID, got.BasedOnLink)

	require.Len(t, got.Rules, 1)
	r := got.Rules[0]
	assert.Equal(t, "R1", r.RuleName)
	assert.False(t, r.IsActive)
	assert.Equal(t, []string{"A1"}, r.Actions)
	assert.Equal(t, f.detector.UIURL+"/conf-scheme/user_policy/"+f.tplID+"/rules/rule/"+rule.ID, r.RuleLink)

	data, err := json.Marshal(r.Variables)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ip":{"global_param_type":"list","value":["L1"]},"limit":5}`, string(data))
}

func TestDetector_CollectPolicy(t *testing.T) {
	f := newFixture(t)
	policyID := f.tenant.AddPolicy("P1", f.tplID)
	f.tenant.OverrideRule(policyID, "R2", true, nil, waftest.MustTree(`{}`))
	pol, _ := f.tenant.Policy("P1")

	got, err := f.detector.Collect(context.Background(), PolicyContainer(pol))
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, "P1", got.PolicyName)
	assert.Equal(t, "T1", got.BasedOnName)
	assert.Equal(t, model.ContainerPolicy, got.Kind())
	require.Len(t, got.Rules, 1)
	assert.Equal(t, "R2", got.Rules[0].RuleName)
	assert.Empty(t, got.Rules[0].Actions)
}

func TestDetector_UnknownReferencesKeepIDs(t *testing.T) {
	f := newFixture(t)
	// Indexes built before the objects existed.
	f.detector.Actions = resolver.NewIndex("action", nil)
	f.detector.Lists = resolver.NewIndex("global list", nil)
	vars := waftest.MustTree(`{"ip":{"global_param_type":"list","value":["` + f.listID + `"]}}`)
	f.tenant.OverrideRule(f.tplID, "R1", true, []string{f.actionID}, vars)
	tpl, _ := f.tenant.UserTemplate("T1")

	got, err := f.detector.Collect(context.Background(), TemplateContainer(tpl))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, []string{f.actionID}, got.Rules[0].Actions)
	ids, _ := got.Rules[0].Variables.Get("ip")
	value, _ := ids.Get("value")
	s, _ := value.Items()[0].Str()
	assert.Equal(t, f.listID, s)
}

func TestDetector_CollectRuleFetchError(t *testing.T) {
	f := newFixture(t)
	f.tenant.FailPath("/config/policies/templates/user/"+f.tplID+"/rules", 500)
	tpl, _ := f.tenant.UserTemplate("T1")

	_, err := f.detector.Collect(context.Background(), TemplateContainer(tpl))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `list rules of template "T1"`)
}
