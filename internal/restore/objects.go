package restore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/edvin/wafbackup/internal/model"
	"github.com/edvin/wafbackup/internal/ptaf"
	"github.com/edvin/wafbackup/internal/runner"
	"github.com/edvin/wafbackup/internal/store"
)

type actionRequest struct {
	TypeID *string         `json:"type_id"`
	Name   string          `json:"name"`
	Params json.RawMessage `json:"params"`
}

type templateRequest struct {
	Name         string    `json:"name"`
	Templates    []*string `json:"templates"`
	HasUserRules bool      `json:"has_user_rules"`
}

// applicationRequest creates a policy. Applications are created passive and
// unbound; hosts and traffic profiles are left to the operator.
type applicationRequest struct {
	Name             string   `json:"name"`
	ProtectionMode   string   `json:"protection_mode"`
	Hosts            []string `json:"hosts"`
	Locations        []string `json:"locations"`
	PolicyTemplateID *string  `json:"policy_template_id"`
	TrafficProfiles  []string `json:"traffic_profiles"`
}

func (r *Restore) restoreActions(ctx context.Context) (runner.Report, error) {
	var records []model.ActionRecord
	if err := r.Store.ReadJSON(store.UserActionsFile, &records); err != nil {
		return runner.Report{}, err
	}
	types, err := r.Resolver.ActionTypes(ctx)
	if err != nil {
		return runner.Report{}, err
	}

	g := r.group(ctx)
	for _, rec := range records {
		g.Go("action", rec.ActionName, func(ctx context.Context) error {
			typeID, err := r.lookup(types, rec.ActionType)
			if errors.Is(err, ErrMissingReference) {
				r.skip(Skip{Stage: StageActions, Object: rec.ActionName, Reason: ReasonMissing, Detail: err.Error()})
				return nil
			}
			_, err = r.Client.PostJSON(ctx, "/config/actions", actionRequest{
				TypeID: typeID,
				Name:   rec.ActionName,
				Params: rec.ActionParams,
			})
			return r.created(StageActions, rec.ActionName, err)
		})
	}
	return g.Wait(), nil
}

func (r *Restore) restoreGlobalLists(ctx context.Context) (runner.Report, error) {
	var records []model.GlobalListRecord
	if err := r.Store.ReadJSON(store.GlobalListsFile, &records); err != nil {
		return runner.Report{}, err
	}

	g := r.group(ctx)
	for _, rec := range records {
		g.Go("global list", rec.ListName, func(ctx context.Context) error {
			return r.uploadList(ctx, rec)
		})
	}
	report := g.Wait()

	// Lists only take effect once applied; apply even when some uploads
	// failed so the ones that made it are usable. The endpoint takes an
	// empty JSON string as its body.
	apply := runner.Outcome{Kind: "global lists apply"}
	if _, err := r.Client.PostJSON(ctx, "/config/global_lists/apply", ""); err != nil {
		apply.Err = err
		r.Logger.Error().Err(err).Msg("apply global lists failed")
	}
	report.Outcomes = append(report.Outcomes, apply)
	return report, nil
}

func (r *Restore) uploadList(ctx context.Context, rec model.GlobalListRecord) error {
	form := ptaf.Form{Fields: []ptaf.FormField{
		{Name: "name", Value: rec.ListName},
		{Name: "type", Value: rec.ListType},
	}}
	if rec.ListType == model.ListTypeStatic {
		f, err := r.Store.OpenList(rec.ListName)
		if err != nil {
			return err
		}
		defer f.Close()
		form.File = &ptaf.FilePart{Field: "file", Filename: rec.ListName, ContentType: "text/plain", Content: f}
	}

	resp, err := r.Client.PostMultipart(ctx, "/config/global_lists", form)
	if err != nil {
		return r.created(StageGlobalLists, rec.ListName, err)
	}
	if resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("upload list: unexpected status %d", resp.StatusCode)
	}
	r.Logger.Info().Str("list", rec.ListName).Str("type", rec.ListType).Msg("global list uploaded")
	return nil
}

func (r *Restore) restoreTemplates(ctx context.Context) (runner.Report, error) {
	var records []model.TemplateRecord
	if err := r.Store.ReadJSON(store.TemplatesFile, &records); err != nil {
		return runner.Report{}, err
	}
	vendors, err := r.Resolver.Templates(ctx, model.OwnerVendor)
	if err != nil {
		return runner.Report{}, err
	}

	g := r.group(ctx)
	for _, rec := range records {
		g.Go("template", rec.Name, func(ctx context.Context) error {
			vendorID, err := r.lookup(vendors, rec.BasedOnName)
			if errors.Is(err, ErrMissingReference) {
				r.skip(Skip{Stage: StageTemplates, Object: rec.Name, Reason: ReasonMissing, Detail: err.Error()})
				return nil
			}
			_, err = r.Client.PostJSON(ctx, "/config/policies/templates/user", templateRequest{
				Name:         rec.Name,
				Templates:    []*string{vendorID},
				HasUserRules: rec.HasUserRules,
			})
			return r.created(StageTemplates, rec.Name, err)
		})
	}
	return g.Wait(), nil
}

// restorePolicies creates a policy for every entry of policy_rules.json.
// Policies without overridden rules are not in the backup and are not created.
func (r *Restore) restorePolicies(ctx context.Context) (runner.Report, error) {
	var entries []*model.ContainerRules
	if err := r.Store.ReadJSON(store.PolicyRulesFile, &entries); err != nil {
		return runner.Report{}, err
	}
	templates, err := r.Resolver.Templates(ctx, model.OwnerUser)
	if err != nil {
		return runner.Report{}, err
	}

	g := r.group(ctx)
	for _, e := range entries {
		if e == nil {
			continue
		}
		g.Go("policy", e.PolicyName, func(ctx context.Context) error {
			templateID, err := r.lookup(templates, e.BasedOnName)
			if errors.Is(err, ErrMissingReference) {
				r.skip(Skip{Stage: StagePolicies, Object: e.PolicyName, Reason: ReasonMissing, Detail: err.Error()})
				return nil
			}
			_, err = r.Client.PostJSON(ctx, "/config/applications", applicationRequest{
				Name:             e.PolicyName,
				ProtectionMode:   "PASSIVE",
				Hosts:            []string{},
				Locations:        []string{"/"},
				PolicyTemplateID: templateID,
				TrafficProfiles:  []string{},
			})
			return r.created(StagePolicies, e.PolicyName, err)
		})
	}
	return g.Wait(), nil
}
