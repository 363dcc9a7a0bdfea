package ptaf

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBoundary(t *testing.T) {
	b := NewBoundary()
	assert.True(t, strings.HasPrefix(b, "----WebKitFormBoundary"))
	assert.Len(t, b, len("----WebKitFormBoundary")+32)
	assert.NotEqual(t, b, NewBoundary())
}

func TestClient_PostMultipart_WithFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		require.NoError(t, r.ParseMultipartForm(1<<20))

		assert.Equal(t, "blocked-ips", r.FormValue("name"))
		assert.Equal(t, "STATIC", r.FormValue("type"))

		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		assert.Equal(t, "blocked-ips", hdr.Filename)
		assert.Equal(t, "text/plain", hdr.Header.Get("Content-Type"))
		data, _ := io.ReadAll(f)
		assert.Equal(t, "10.0.0.1\n10.0.0.2", string(data))

		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	client.token = "tok"
	resp, err := client.PostMultipart(context.Background(), "/config/global_lists", Form{
		Fields: []FormField{{Name: "name", Value: "blocked-ips"}, {Name: "type", Value: "STATIC"}},
		File: &FilePart{
			Field:       "file",
			Filename:    "blocked-ips",
			ContentType: "text/plain",
			Content:     strings.NewReader("10.0.0.1\n10.0.0.2"),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestClient_PostMultipart_FieldsOnly(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.Header.Get("Content-Type"), "boundary=----WebKitFormBoundary")
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "bad-bots", r.FormValue("name"))
		assert.Equal(t, "DYNAMIC", r.FormValue("type"))
		assert.Empty(t, r.MultipartForm.File)
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	_, err := client.PostMultipart(context.Background(), "/config/global_lists", Form{
		Fields: []FormField{{Name: "name", Value: "bad-bots"}, {Name: "type", Value: "DYNAMIC"}},
	})
	require.Error(t, err)
	assert.True(t, IsStatus(err, http.StatusUnprocessableEntity))
}
