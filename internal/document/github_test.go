package document

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/google/go-github/v81/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ghclient "github.com/mike-a-ellis/bookrag/internal/github"
)

func serveFile(w http.ResponseWriter, name, content string) {
	fmt.Fprintf(w, `{"type":"file","name":%q,"encoding":"base64","content":%q}`,
		name, base64.StdEncoding.EncodeToString([]byte(content)))
}

func TestGitHubSource_Extract(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/novel/contents/book", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"type":"file","name":"01-harbor.md"},{"type":"file","name":"02-storm.md"},{"type":"file","name":"03-home.md"}]`)
	})
	mux.HandleFunc("/repos/acme/novel/contents/book/01-harbor.md", func(w http.ResponseWriter, r *http.Request) {
		serveFile(w, "01-harbor.md", "# Harbor\n\nBoats return at dusk.\n\n## Night\n\nThe lamps are lit.")
	})
	mux.HandleFunc("/repos/acme/novel/contents/book/03-home.md", func(w http.ResponseWriter, r *http.Request) {
		serveFile(w, "03-home.md", "# Home\n\nThe keeper sleeps.")
	})
	mux.HandleFunc("/repos/acme/novel/commits", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"sha":"abc123"}]`)
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	gh := github.NewClient(srv.Client())
	base, err := url.Parse(srv.URL + "/")
	require.NoError(t, err)
	gh.BaseURL = base

	source := NewGitHubSource(&ghclient.Client{Client: gh}, nil)
	pages, err := source.Extract(context.Background(), "github:acme/novel/book")
	require.NoError(t, err)

	require.Len(t, pages, 4)
	assert.Equal(t, "# Harbor\n\nBoats return at dusk.", pages[1])
	assert.Equal(t, "## Night\n\nThe lamps are lit.", pages[2])
	assert.True(t, IsFailed(pages[3]), "missing file becomes a sentinel page")
	assert.Equal(t, "# Home\n\nThe keeper sleeps.", pages[4])
}

func TestGitHubSource_BadSource(t *testing.T) {
	source := NewGitHubSource(&ghclient.Client{Client: github.NewClient(nil)}, nil)

	_, err := source.Extract(context.Background(), "github:acme")
	assert.ErrorIs(t, err, ErrUnsupportedInput)
}
