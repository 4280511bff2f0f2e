// Package combo 提供合并静态文件的 HTTP 处理器
//
// 请求格式：
//
//	GET /yui3?build/yui/yui-min.js&build/loader/loader-min.js
//
// 查询串中的每一项都是相对于路由根目录的文件路径，按出现顺序以换行拼接后返回。
package combo

import (
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// MimeTypes 是默认支持的扩展名，第一个文件的扩展名不在表中时返回 400
var MimeTypes = map[string]string{
	".css":  "text/css",
	".js":   "application/javascript",
	".json": "application/json",
	".txt":  "text/plain",
	".xml":  "application/xml",
}

var urlPattern = regexp.MustCompile(`url\(([^)]+)\)`)

type Options struct {
	// RootPath 是文件所在的根目录，创建处理器时解析符号链接，目录不存在时返回错误
	RootPath string
	// BasePath 用于改写 CSS 中的 url()，为空时不改写
	BasePath string
	// MaxAge 是缓存时间（秒），小于 0 时不发送 Cache-Control 和 Expires
	MaxAge    int
	MimeTypes map[string]string
}

type badRequest string

func (e badRequest) Error() string {
	return string(e)
}

type handler struct {
	root      string
	basePath  string
	maxAge    int
	mimeTypes map[string]string
	now       func() time.Time
}

// Combine 创建一个合并 opts.RootPath 下文件的处理器
func Combine(opts Options) (http.Handler, error) {
	root, err := filepath.Abs(opts.RootPath)
	if err != nil {
		return nil, err
	}

	root, err = filepath.EvalSymlinks(root)
	if err != nil {
		return nil, fmt.Errorf("invalid root %s: %w", opts.RootPath, err)
	}

	mimeTypes := opts.MimeTypes
	if mimeTypes == nil {
		mimeTypes = MimeTypes
	}

	return &handler{
		root:      root,
		basePath:  strings.TrimSuffix(opts.BasePath, "/"),
		maxAge:    opts.MaxAge,
		mimeTypes: mimeTypes,
		now:       time.Now,
	}, nil
}

func (h *handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	files := parseQuery(r.URL.RawQuery)
	if len(files) == 0 {
		badRequestError(w, badRequest("No files requested."))
		return
	}

	mimeType, ok := h.mimeTypes[strings.ToLower(path.Ext(files[0]))]
	if !ok {
		badRequestError(w, badRequest("Unsupported file type: "+files[0]))
		return
	}

	body := make([]string, 0, len(files))
	var lastModified time.Time

	for _, rel := range files {
		data, mtime, err := h.read(rel, mimeType == "text/css")
		if err != nil {
			badRequestError(w, err)
			return
		}

		if mtime.After(lastModified) {
			lastModified = mtime
		}
		body = append(body, data)
	}

	header := w.Header()
	header.Set("Last-Modified", lastModified.UTC().Format(http.TimeFormat))
	if h.maxAge >= 0 {
		header.Set("Cache-Control", "public,max-age="+strconv.Itoa(h.maxAge))
		header.Set("Expires", h.now().Add(time.Duration(h.maxAge)*time.Second).UTC().Format(http.TimeFormat))
	}
	header.Set("Content-Type", mimeType+";charset=utf-8")

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(strings.Join(body, "\n")))
}

func (h *handler) read(rel string, isCSS bool) (string, time.Time, error) {
	notFound := badRequest("File not found: " + rel)

	abs := filepath.Join(h.root, filepath.FromSlash(rel))
	if abs != h.root && !strings.HasPrefix(abs, h.root+string(filepath.Separator)) {
		return "", time.Time{}, notFound
	}

	info, err := os.Stat(abs)
	if err != nil || !info.Mode().IsRegular() {
		return "", time.Time{}, notFound
	}

	raw, err := os.ReadFile(abs)
	if err != nil {
		return "", time.Time{}, badRequest("Error reading file: " + rel)
	}

	data := string(raw)
	if isCSS {
		data = h.absolutize(abs, data)
	}

	return data, info.ModTime(), nil
}

// absolutize 把 CSS 中相对路径的 url() 改写为相对于 BasePath 的绝对路径
//
//	basePath: /var/www
//	文件:     /var/www/static/yui/slider/skins/sam/slider.css
//	url(rail-x.png) -> url(/static/yui/slider/skins/sam/rail-x.png)
func (h *handler) absolutize(abs, data string) string {
	if h.basePath == "" || !strings.HasPrefix(abs, h.basePath) {
		return data
	}

	dir := path.Dir(filepath.ToSlash(strings.TrimPrefix(abs, h.basePath)))

	return urlPattern.ReplaceAllStringFunc(data, func(m string) string {
		ref := strings.TrimSpace(urlPattern.FindStringSubmatch(m)[1])

		quote := ""
		if len(ref) >= 2 && (ref[0] == '"' || ref[0] == '\'') && ref[len(ref)-1] == ref[0] {
			quote = ref[:1]
			ref = ref[1 : len(ref)-1]
		}

		if ref == "" || strings.HasPrefix(ref, "/") || strings.HasPrefix(ref, "#") || strings.Contains(ref, ":") {
			return m
		}

		return "url(" + quote + path.Join(dir, ref) + quote + ")"
	})
}

// parseQuery 按原样解析查询串：只取每一项 "=" 之前的部分，跳过空项，"+" 视为空格
func parseQuery(raw string) []string {
	if raw == "" {
		return nil
	}

	var files []string
	for _, item := range strings.Split(raw, "&") {
		name, _, _ := strings.Cut(item, "=")
		if decoded, err := url.PathUnescape(name); err == nil {
			name = decoded
		}

		name = strings.ReplaceAll(name, "+", " ")
		if name != "" {
			files = append(files, name)
		}
	}

	return files
}

func badRequestError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusBadRequest)
	_, _ = fmt.Fprintf(w, "Bad request. %s", err)
}
