package page

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const resourcePage = `<!DOCTYPE html>
<html><head>
<link rel="stylesheet" href="/static/site.css">
<link rel="icon" href="favicon.ico">
<script src="//cdn.h.com/app.js"></script>
<script>var inline = 1;</script>
</head><body>
<img src="/a.png">
<img src="https://other.com/b.png">
<img src="data:image/png;base64,AAAA">
<img alt="no source">
<img srcset="small.jpg 1x, /large.jpg 2x">
<picture><source srcset="/w.webp 480w"><source src="clip.mp4"></picture>
<video src="movie.mp4" poster="/poster.jpg"></video>
<iframe src="embed/frame.html"></iframe>
<a href="/not-a-resource">link</a>
<link rel="alternate" href="#top">
</body></html>`

func mustBase(t *testing.T, raw string) CanonicalURL {
	t.Helper()
	base, err := NewCanonicalizer(nil).Canonicalize(raw)
	require.NoError(t, err)
	return base
}

func mustParse(t *testing.T, html string) *Document {
	t.Helper()
	doc, err := Parse(html)
	require.NoError(t, err)
	return doc
}

func attrs(doc *Document, selector, attr string) []string {
	var out []string
	for _, node := range doc.Find(selector).Nodes {
		for _, a := range node.Attr {
			if a.Key == attr {
				out = append(out, a.Val)
			}
		}
	}
	return out
}

func TestAbsolutize_ResolvesImageAgainstBase(t *testing.T) {
	t.Parallel()

	doc := Absolutize(mustParse(t, `<img src="/a.png">`), mustBase(t, "http://h.com/p/q"))
	require.Equal(t, []string{"http://h.com/a.png"}, attrs(doc, "img", "src"))
}

func TestAbsolutize_RewritesResourceAttributes(t *testing.T) {
	t.Parallel()

	doc := Absolutize(mustParse(t, resourcePage), mustBase(t, "http://h.com/p/q"))

	require.Equal(t, []string{
		"http://h.com/a.png",
		"https://other.com/b.png",
		"data:image/png;base64,AAAA",
	}, attrs(doc, "img[src]", "src"))
	require.Equal(t, []string{"http://h.com/p/small.jpg 1x, http://h.com/large.jpg 2x"}, attrs(doc, "img[srcset]", "srcset"))
	require.Equal(t, []string{"http://h.com/static/site.css", "http://h.com/p/favicon.ico", "#top"}, attrs(doc, "link", "href"))
	require.Equal(t, []string{"http://cdn.h.com/app.js"}, attrs(doc, "script[src]", "src"))
	require.Equal(t, []string{"http://h.com/w.webp 480w"}, attrs(doc, "source[srcset]", "srcset"))
	require.Equal(t, []string{"http://h.com/p/clip.mp4"}, attrs(doc, "source[src]", "src"))
	require.Equal(t, []string{"http://h.com/p/movie.mp4"}, attrs(doc, "video", "src"))
	require.Equal(t, []string{"http://h.com/poster.jpg"}, attrs(doc, "video", "poster"))
	require.Equal(t, []string{"http://h.com/p/embed/frame.html"}, attrs(doc, "iframe", "src"))
	// anchors are navigation, not embedded resources
	require.Equal(t, []string{"/not-a-resource"}, attrs(doc, "a", "href"))
}

func TestAbsolutize_SkipsNodesWithoutAttribute(t *testing.T) {
	t.Parallel()

	doc := Absolutize(mustParse(t, `<img alt="x"><script>1</script>`), mustBase(t, "http://h.com/"))
	require.Empty(t, attrs(doc, "img", "src"))
	require.Empty(t, attrs(doc, "script", "src"))
}

func TestAbsolutize_Idempotent(t *testing.T) {
	t.Parallel()

	base := mustBase(t, "https://h.com/dir/page.html")
	once, err := Absolutize(mustParse(t, resourcePage), base).Render()
	require.NoError(t, err)
	twice, err := Absolutize(mustParse(t, once), base).Render()
	require.NoError(t, err)
	require.Equal(t, once, twice)

	doc := mustParse(t, resourcePage)
	Absolutize(doc, base)
	first, err := doc.Render()
	require.NoError(t, err)
	Absolutize(doc, base)
	second, err := doc.Render()
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestAbsolutize_NilDocument(t *testing.T) {
	t.Parallel()

	require.Nil(t, Absolutize(nil, mustBase(t, "https://h.com/")))
}

func TestAbsolutize_SrcsetKeepsCommasInsideURLs(t *testing.T) {
	t.Parallel()

	html := `<img srcset="https://res.cloudinary.com/demo/w_100,h_100/a.jpg 1x, https://res.cloudinary.com/demo/w_200,h_200/a.jpg 2x">` +
		`<img srcset="/c/w_1,h_1/x.jpg 320w,rel/y.jpg 640w">`
	doc := Absolutize(mustParse(t, html), mustBase(t, "http://h.com/p/q"))

	require.Equal(t, []string{
		"https://res.cloudinary.com/demo/w_100,h_100/a.jpg 1x, https://res.cloudinary.com/demo/w_200,h_200/a.jpg 2x",
		"http://h.com/c/w_1,h_1/x.jpg 320w, http://h.com/p/rel/y.jpg 640w",
	}, attrs(doc, "img", "srcset"))
}

func TestParseSrcset(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		value string
		want  []srcsetCandidate
	}{
		{name: "empty", value: "  ", want: nil},
		{name: "url only", value: "a.jpg", want: []srcsetCandidate{{url: "a.jpg"}}},
		{
			name:  "trailing comma ends candidate",
			value: "a.jpg, b.jpg 2x",
			want:  []srcsetCandidate{{url: "a.jpg"}, {url: "b.jpg", descriptor: "2x"}},
		},
		{
			name:  "comma without whitespace stays in url",
			value: "a.jpg,b.jpg 2x",
			want:  []srcsetCandidate{{url: "a.jpg,b.jpg", descriptor: "2x"}},
		},
		{
			name:  "data uri keeps its comma",
			value: "data:image/png;base64,AAAA 1x, /b.png 2x",
			want: []srcsetCandidate{
				{url: "data:image/png;base64,AAAA", descriptor: "1x"},
				{url: "/b.png", descriptor: "2x"},
			},
		},
		{
			name:  "descriptor whitespace collapsed",
			value: "a.jpg   100w\n ,  b.jpg 200w",
			want: []srcsetCandidate{
				{url: "a.jpg", descriptor: "100w"},
				{url: "b.jpg", descriptor: "200w"},
			},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, parseSrcset(tc.value))
		})
	}
}
