package resolver

import (
	"context"
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"github.com/edvin/wafbackup/internal/model"
	"github.com/edvin/wafbackup/internal/ptaf"
)

var ErrNotFound = errors.New("not found")

// Resolver builds name indexes against one tenant.
type Resolver struct {
	client *ptaf.Client
	logger zerolog.Logger
	names  *lru.Cache[string, string]
}

func New(client *ptaf.Client, logger zerolog.Logger) *Resolver {
	names, _ := lru.New[string, string](1024)
	return &Resolver{
		client: client,
		logger: logger.With().Str("component", "resolver").Logger(),
		names:  names,
	}
}

// Resolve fetches the collection at path and indexes its items by id and name.
func (r *Resolver) Resolve(ctx context.Context, kind, path string) (*Index, error) {
	items, err := ptaf.List[model.NamedItem](ctx, r.client, path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s names: %w", kind, err)
	}

	return r.Build(kind, items), nil
}

// Build indexes items fetched elsewhere, warning about shared names.
func (r *Resolver) Build(kind string, items []model.NamedItem) *Index {
	idx := NewIndex(kind, items)
	for _, c := range idx.Collisions() {
		r.logger.Warn().
			Str("kind", kind).
			Str("name", c.Name).
			Strs("ids", c.IDs).
			Msg("name shared by several objects, the first one will be used")
	}
	return idx
}

func (r *Resolver) ActionTypes(ctx context.Context) (*Index, error) {
	return r.Resolve(ctx, "action type", "/config/action_types")
}

func (r *Resolver) Actions(ctx context.Context) (*Index, error) {
	return r.Resolve(ctx, "action", "/config/actions")
}

func (r *Resolver) GlobalLists(ctx context.Context) (*Index, error) {
	return r.Resolve(ctx, "global list", "/config/global_lists")
}

func (r *Resolver) Templates(ctx context.Context, owner string) (*Index, error) {
	return r.Resolve(ctx, owner+" template", fmt.Sprintf("/config/policies/templates/%s", owner))
}

func (r *Resolver) Policies(ctx context.Context) (*Index, error) {
	return r.Resolve(ctx, "policy", "/config/policies")
}

// TemplateRules indexes the rules of one template.
func (r *Resolver) TemplateRules(ctx context.Context, owner, templateID string) (*Index, error) {
	return r.Resolve(ctx, "rule", fmt.Sprintf("/config/policies/templates/%s/%s/rules", owner, templateID))
}

// TemplateName fetches the name of a single template. Results are cached for
// the lifetime of the resolver since many containers share a base template.
func (r *Resolver) TemplateName(ctx context.Context, owner, id string) (string, error) {
	if id == "" {
		return "", fmt.Errorf("%s template with empty id: %w", owner, ErrNotFound)
	}
	key := owner + "/" + id
	if name, ok := r.names.Get(key); ok {
		return name, nil
	}

	var tpl model.NamedItem
	if err := r.client.GetJSON(ctx, fmt.Sprintf("/config/policies/templates/%s/%s", owner, id), &tpl); err != nil {
		return "", fmt.Errorf("get %s template %s: %w", owner, id, err)
	}
	r.names.Add(key, tpl.Name)
	return tpl.Name, nil
}
