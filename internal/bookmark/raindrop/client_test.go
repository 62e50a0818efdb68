package raindrop

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joalvis1996/archive-saver-web/internal/archive"
)

func newTestClient(t *testing.T, handler http.Handler, includeChildren bool) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := New(Config{BaseURL: server.URL + "/", Token: "secret-token", IncludeChildren: includeChildren}, server.Client(), nil)
	require.NoError(t, err)
	return client
}

func TestNew(t *testing.T) {
	_, err := New(Config{}, nil, nil)
	require.Error(t, err)

	client, err := New(Config{Token: "t"}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultBaseURL, client.baseURL)
	assert.NotNil(t, client.http)
}

func TestListCollections(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/collections", r.URL.Path)
		assert.Equal(t, "Bearer secret-token", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"result":true,"items":[{"_id":7,"title":"Reading","count":3},{"_id":8,"title":"Recipes","count":0}]}`))
	})

	cols, err := newTestClient(t, handler, false).ListCollections(context.Background())
	require.NoError(t, err)
	require.Len(t, cols, 2)
	assert.Equal(t, int64(7), cols[0].ID)
	assert.Equal(t, "Reading", cols[0].Title)
	assert.Equal(t, 3, cols[0].Count)
}

func TestListCollections_IncludeChildren(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/collections":
			_, _ = w.Write([]byte(`{"result":true,"items":[{"_id":1,"title":"Root"}]}`))
		case "/collections/childrens":
			_, _ = w.Write([]byte(`{"result":true,"items":[{"_id":2,"title":"Child","parent":{"$id":1}}]}`))
		default:
			http.NotFound(w, r)
		}
	})

	cols, err := newTestClient(t, handler, true).ListCollections(context.Background())
	require.NoError(t, err)
	require.Len(t, cols, 2)
	require.NotNil(t, cols[1].Parent)
	assert.Equal(t, int64(1), cols[1].Parent.ID)
}

func TestListCollections_EmptyItems(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"result":true}`))
	})

	cols, err := newTestClient(t, handler, false).ListCollections(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, cols)
	assert.Empty(t, cols)
}

func TestListCollections_Errors(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"unauthorized": func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		},
		"result false": func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"result":false,"errorMessage":"nope"}`))
		},
		"bad json": func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{`))
		},
	}
	for name, handler := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := newTestClient(t, handler, false).ListCollections(context.Background())
			require.ErrorIs(t, err, archive.ErrBookmark)
		})
	}
}

func TestCreateBookmark(t *testing.T) {
	var got map[string]any
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/raindrop", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "Bearer secret-token", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"result":true,"item":{"_id":98765}}`))
	})

	id, err := newTestClient(t, handler, false).CreateBookmark(context.Background(), archive.Bookmark{
		Link:         "https://storage.googleapis.com/b/www.example.com_42.html",
		Title:        "Example",
		Excerpt:      "https://www.example.com/page?document_srl=42",
		Tags:         []string{"www.example.com"},
		CollectionID: 7,
		Cover:        "https://www.example.com/cover.png",
	})
	require.NoError(t, err)
	assert.Equal(t, "98765", id)

	assert.Equal(t, "https://storage.googleapis.com/b/www.example.com_42.html", got["link"])
	assert.Equal(t, "Example", got["title"])
	assert.Equal(t, "https://www.example.com/page?document_srl=42", got["excerpt"])
	assert.Equal(t, []any{"www.example.com"}, got["tags"])
	assert.Equal(t, map[string]any{"$id": float64(7)}, got["collection"])
	assert.Equal(t, "https://www.example.com/cover.png", got["cover"])
}

func TestCreateBookmark_OmitsEmptyCover(t *testing.T) {
	var got map[string]any
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"result":true,"item":{"_id":1}}`))
	})

	_, err := newTestClient(t, handler, false).CreateBookmark(context.Background(), archive.Bookmark{Link: "l", CollectionID: 1})
	require.NoError(t, err)
	assert.NotContains(t, got, "cover")
	assert.Equal(t, []any{}, got["tags"])
}

func TestCreateBookmark_Errors(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"server error": func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		},
		"rate limited": func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		},
		"result false": func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"result":false,"errorMessage":"invalid collection"}`))
		},
	}
	for name, handler := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := newTestClient(t, handler, false).CreateBookmark(context.Background(), archive.Bookmark{Link: "l", CollectionID: 1})
			require.ErrorIs(t, err, archive.ErrBookmark)
		})
	}
}

func TestCreateBookmark_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	server.Close()

	client, err := New(Config{BaseURL: server.URL, Token: "t"}, nil, nil)
	require.NoError(t, err)
	_, err = client.CreateBookmark(context.Background(), archive.Bookmark{Link: "l", CollectionID: 1})
	require.ErrorIs(t, err, archive.ErrBookmark)
}
