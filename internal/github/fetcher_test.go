package github

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
)

func fileJSON(name, content string) string {
	return fmt.Sprintf(`{"type":"file","name":%q,"encoding":"base64","content":%q,"sha":"sha-%s"}`,
		name, base64.StdEncoding.EncodeToString([]byte(content)), name)
}

func newTestClient(t *testing.T, mux *http.ServeMux) *Client {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	gh := github.NewClient(srv.Client())
	base, err := url.Parse(srv.URL + "/")
	require.NoError(t, err)
	gh.BaseURL = base
	return &Client{Client: gh}
}

func bookMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/book/contents/chapters", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[
			{"type":"file","name":"02-storm.md"},
			{"type":"file","name":"01-harbor.md"},
			{"type":"file","name":"cover.png"},
			{"type":"dir","name":"appendix"}
		]`)
	})
	mux.HandleFunc("/repos/acme/book/contents/chapters/appendix", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"type":"file","name":"glossary.MD"}]`)
	})
	mux.HandleFunc("/repos/acme/book/contents/chapters/01-harbor.md", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, fileJSON("01-harbor.md", "# Harbor\n\nBoats return at dusk."))
	})
	mux.HandleFunc("/repos/acme/book/commits", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"sha":"abc123"}]`)
	})
	return mux
}

func TestFetcher_ListDocs(t *testing.T) {
	f := NewFetcher(newTestClient(t, bookMux()), "acme", "book", "chapters")

	docs, err := f.ListDocs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"01-harbor.md", "02-storm.md", "appendix/glossary.MD"}, docs)
}

func TestFetcher_FetchDoc(t *testing.T) {
	f := NewFetcher(newTestClient(t, bookMux()), "acme", "book", "chapters")

	doc, err := f.FetchDoc(context.Background(), "01-harbor.md")
	require.NoError(t, err)
	assert.Equal(t, "01-harbor.md", doc.Path)
	assert.Equal(t, "# Harbor\n\nBoats return at dusk.", doc.Content)
	assert.Equal(t, "sha-01-harbor.md", doc.SHA)

	_, err = f.FetchDoc(context.Background(), "02-storm.md")
	assert.Error(t, err)
}

func TestFetcher_SingleFileBook(t *testing.T) {
	f := NewFetcher(newTestClient(t, bookMux()), "acme", "book", "chapters/01-harbor.md")
	ctx := context.Background()

	docs, err := f.ListDocs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"01-harbor.md"}, docs)

	doc, err := f.FetchDoc(ctx, docs[0])
	require.NoError(t, err)
	assert.Contains(t, doc.Content, "Boats return")
}

func TestFetcher_LatestCommitSHA(t *testing.T) {
	f := NewFetcher(newTestClient(t, bookMux()), "acme", "book", "chapters")

	sha, err := f.LatestCommitSHA(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abc123", sha)
}

func TestNewClient(t *testing.T) {
	c, err := NewClient(context.Background(), "")
	require.NoError(t, err)
	assert.NotNil(t, c.Repositories)

	c, err = NewClient(context.Background(), "ghp_example")
	require.NoError(t, err)
	assert.NotNil(t, c.Repositories)
}
