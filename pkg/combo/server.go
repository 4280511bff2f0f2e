package combo

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"combo/pkg/config"
	"combo/pkg/logger"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// Factory 根据配置创建 worker 使用的 HTTP 处理器
type Factory func(cfg *config.Config) (http.Handler, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

func init() {
	Register("combo", NewRouter)
}

// Register makes a handler factory available under name. A later call with
// the same name replaces the earlier factory.
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()

	registry[name] = f
}

func Lookup(name string) (Factory, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	f, ok := registry[name]
	return f, ok
}

// NewServer 按 cfg.Server 查找工厂并创建处理器
func NewServer(cfg *config.Config) (http.Handler, error) {
	f, ok := Lookup(cfg.Server)
	if !ok {
		return nil, fmt.Errorf("unknown server %q", cfg.Server)
	}

	return f(cfg)
}

// NewRouter 为 cfg.Roots 中的每个路由注册一个合并处理器，注册顺序与配置顺序一致
func NewRouter(cfg *config.Config) (http.Handler, error) {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(logger.Logging("http")))

	if cfg.Roots == nil {
		return r, nil
	}

	for pair := cfg.Roots.Oldest(); pair != nil; pair = pair.Next() {
		h, err := Combine(Options{
			RootPath: pair.Value,
			BasePath: cfg.BasePath,
			MaxAge:   cfg.MaxAge,
		})
		if err != nil {
			return nil, err
		}

		r.Method(http.MethodGet, pair.Key, h)
	}

	return r, nil
}

func requestLogger(log *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r)

			log.Infow("request",
				"method", r.Method,
				"uri", r.RequestURI,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
			)
		})
	}
}
