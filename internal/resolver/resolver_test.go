package resolver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edvin/wafbackup/internal/config"
	"github.com/edvin/wafbackup/internal/ptaf"
)

func newResolver(t *testing.T, h http.HandlerFunc) *Resolver {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(ptaf.NewClient(srv.URL, config.Tenant{}, zerolog.Nop()), zerolog.Nop())
}

func TestResolver_Endpoints(t *testing.T) {
	var paths []string
	r := newResolver(t, func(w http.ResponseWriter, req *http.Request) {
		paths = append(paths, req.URL.Path)
		w.Write([]byte(`{"items":[{"id":"1","name":"one"}]}`))
	})
	ctx := context.Background()

	_, err := r.ActionTypes(ctx)
	require.NoError(t, err)
	_, err = r.Actions(ctx)
	require.NoError(t, err)
	_, err = r.GlobalLists(ctx)
	require.NoError(t, err)
	_, err = r.Templates(ctx, "vendor")
	require.NoError(t, err)
	_, err = r.Policies(ctx)
	require.NoError(t, err)
	idx, err := r.TemplateRules(ctx, "vendor", "v1")
	require.NoError(t, err)

	assert.Equal(t, []string{
		"/config/action_types",
		"/config/actions",
		"/config/global_lists",
		"/config/policies/templates/vendor",
		"/config/policies",
		"/config/policies/templates/vendor/v1/rules",
	}, paths)
	id, ok := idx.ID("one")
	assert.True(t, ok)
	assert.Equal(t, "1", id)
}

func TestResolver_ResolveError(t *testing.T) {
	r := newResolver(t, func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	_, err := r.Actions(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "resolve action names")
	assert.True(t, ptaf.IsStatus(err, http.StatusForbidden))
}

func TestResolver_TemplateNameIsCached(t *testing.T) {
	var calls atomic.Int32
	r := newResolver(t, func(w http.ResponseWriter, req *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/config/policies/templates/vendor/v1", req.URL.Path)
		w.Write([]byte(`{"id":"v1","name":"Base","rules_count":12}`))
	})

	for i := 0; i < 3; i++ {
		name, err := r.TemplateName(context.Background(), "vendor", "v1")
		require.NoError(t, err)
		assert.Equal(t, "Base", name)
	}
	assert.Equal(t, int32(1), calls.Load())
}

func TestResolver_TemplateNameEmptyID(t *testing.T) {
	r := newResolver(t, func(w http.ResponseWriter, req *http.Request) {
		t.Fatal("no request expected")
	})
	_, err := r.TemplateName(context.Background(), "user", "")
	assert.ErrorIs(t, err, ErrNotFound)
}
