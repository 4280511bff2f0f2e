package combo

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"combo/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

func fixtures(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	files := map[string]string{
		"root/js/a.js":             "var a = 1;",
		"root/js/b.js":             "var b = 2;",
		"root/js/space name.js":    "var s;",
		"root/css/skin/slider.css": ".rail { background: url(rail-x.png); }\n.logo { background: url('/img/logo.png'); }\n.cdn { background: url(http://cdn/x.png); }",
		"root/data.bin":            "binary",
		"secret.js":                "secret",
	}

	for name, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	}

	return dir
}

func serve(t *testing.T, h http.Handler, target string) (*http.Response, string) {
	t.Helper()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))

	res := rec.Result()
	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)

	return res, string(body)
}

func newHandler(t *testing.T, dir string, maxAge int) http.Handler {
	t.Helper()

	h, err := Combine(Options{RootPath: filepath.Join(dir, "root"), BasePath: dir, MaxAge: maxAge})
	require.NoError(t, err)

	return h
}

func TestCombineJoinsFilesInOrder(t *testing.T) {
	dir := fixtures(t)
	h := newHandler(t, dir, 31536000)

	res, body := serve(t, h, "/js?js/b.js&js/a.js")

	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "var b = 2;\nvar a = 1;", body)
	assert.Equal(t, "application/javascript;charset=utf-8", res.Header.Get("Content-Type"))
	assert.Equal(t, "public,max-age=31536000", res.Header.Get("Cache-Control"))
	assert.NotEmpty(t, res.Header.Get("Expires"))
	assert.NotEmpty(t, res.Header.Get("Last-Modified"))
}

func TestCombineLastModifiedIsNewest(t *testing.T) {
	dir := fixtures(t)
	newest := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, os.Chtimes(filepath.Join(dir, "root/js/a.js"), newest.Add(-time.Hour), newest.Add(-time.Hour)))
	require.NoError(t, os.Chtimes(filepath.Join(dir, "root/js/b.js"), newest, newest))

	res, _ := serve(t, newHandler(t, dir, 0), "/js?js/a.js&js/b.js")

	assert.Equal(t, newest.Format(http.TimeFormat), res.Header.Get("Last-Modified"))
	assert.Equal(t, "public,max-age=0", res.Header.Get("Cache-Control"))
}

func TestCombineNegativeMaxAgeOmitsCacheHeaders(t *testing.T) {
	res, _ := serve(t, newHandler(t, fixtures(t), -1), "/js?js/a.js")

	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Empty(t, res.Header.Get("Cache-Control"))
	assert.Empty(t, res.Header.Get("Expires"))
}

func TestCombineBadRequests(t *testing.T) {
	h := newHandler(t, fixtures(t), 0)

	cases := []struct {
		target string
		body   string
	}{
		{"/js", "Bad request. No files requested."},
		{"/js?&", "Bad request. No files requested."},
		{"/js?data.bin", "Bad request. Unsupported file type: data.bin"},
		{"/js?js/missing.js", "Bad request. File not found: js/missing.js"},
		{"/js?../secret.js", "Bad request. File not found: ../secret.js"},
		{"/js?js", "Bad request. Unsupported file type: js"},
	}

	for _, tc := range cases {
		t.Run(tc.target, func(t *testing.T) {
			res, body := serve(t, h, tc.target)
			assert.Equal(t, http.StatusBadRequest, res.StatusCode)
			assert.Equal(t, tc.body, body)
			assert.Equal(t, "text/plain; charset=utf-8", res.Header.Get("Content-Type"))
		})
	}
}

func TestCombineDecodesQuery(t *testing.T) {
	h := newHandler(t, fixtures(t), 0)

	_, body := serve(t, h, "/js?js/space+name.js&js%2Fa.js=1")
	assert.Equal(t, "var s;\nvar a = 1;", body)
}

func TestCombineRewritesCSSURLs(t *testing.T) {
	res, body := serve(t, newHandler(t, fixtures(t), 0), "/css?css/skin/slider.css")

	assert.Equal(t, "text/css;charset=utf-8", res.Header.Get("Content-Type"))
	assert.Contains(t, body, "url(/root/css/skin/rail-x.png)")
	assert.Contains(t, body, "url('/img/logo.png')")
	assert.Contains(t, body, "url(http://cdn/x.png)")
}

func TestCombineMissingRoot(t *testing.T) {
	_, err := Combine(Options{RootPath: filepath.Join(t.TempDir(), "nope")})
	assert.Error(t, err)
}

func TestRouterRegistersRoots(t *testing.T) {
	dir := fixtures(t)
	roots := orderedmap.New[string, string]()
	roots.Set("/yui", filepath.Join(dir, "root"))

	cfg := &config.Config{Server: "combo", BasePath: dir, MaxAge: 10, Roots: roots}

	h, err := NewServer(cfg)
	require.NoError(t, err)

	res, body := serve(t, h, "/yui?js/a.js")
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "var a = 1;", body)

	res, _ = serve(t, h, "/other?js/a.js")
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestNewServerUnknownFactory(t *testing.T) {
	_, err := NewServer(&config.Config{Server: "nope"})
	assert.ErrorContains(t, err, "unknown server")
}

func TestRegisterCustomFactory(t *testing.T) {
	Register("teapot", func(*config.Config) (http.Handler, error) {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusTeapot)
		}), nil
	})

	h, err := NewServer(&config.Config{Server: "teapot"})
	require.NoError(t, err)

	res, _ := serve(t, h, "/")
	assert.Equal(t, http.StatusTeapot, res.StatusCode)
}
