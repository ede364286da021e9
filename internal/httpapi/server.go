package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/yuqie6/drivestats/internal/bootstrap"
)

type Server struct {
	core *bootstrap.Core
	ln   net.Listener
	srv  *http.Server
	addr string
}

type Options struct {
	ListenAddr     string // e.g. ":5000"
	CORSOrigins    []string
	RequestTimeout time.Duration
}

// OptionsFrom 从配置生成服务选项
func OptionsFrom(core *bootstrap.Core) Options {
	return Options{
		ListenAddr:     core.Cfg.Server.ListenAddr,
		CORSOrigins:    core.Cfg.Server.CORSOrigins,
		RequestTimeout: time.Duration(core.Cfg.Server.RequestTimeoutSec) * time.Second,
	}
}

// Start 监听端口并在后台提供服务；ctx 取消时自动关闭
func Start(ctx context.Context, core *bootstrap.Core, opts Options) (*Server, error) {
	if core == nil {
		return nil, fmt.Errorf("core 不能为空")
	}
	if strings.TrimSpace(opts.ListenAddr) == "" {
		opts.ListenAddr = "127.0.0.1:0"
	}

	ln, err := net.Listen("tcp", opts.ListenAddr)
	if err != nil {
		return nil, fmt.Errorf("监听 %s 失败: %w", opts.ListenAddr, err)
	}

	handler := NewHandler(core, opts)
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	// 关闭时结束事件流长连接，否则 Shutdown 会一直等待
	srv.RegisterOnShutdown(core.Hub.Close)

	s := &Server{
		core: core,
		ln:   ln,
		srv:  srv,
		addr: ln.Addr().String(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Shutdown(shutdownCtx)
	}()

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server 异常退出", "error", err)
		}
	}()

	slog.Info("HTTP 服务已启动", "addr", s.addr)
	return s, nil
}

// Addr 实际监听地址
func (s *Server) Addr() string {
	if s == nil {
		return ""
	}
	return s.addr
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s == nil || s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

// NewHandler 构建完整的 HTTP 处理链（路由、CORS、请求超时）
func NewHandler(core *bootstrap.Core, opts Options) http.Handler {
	api := newAPI(core)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", api.handleHealth)
	mux.HandleFunc("GET /api/status", api.getStatus)
	api.registerDriveRoutes(mux)

	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	// 事件流是长连接，不受请求超时限制
	root := http.NewServeMux()
	root.HandleFunc("GET /api/events", api.handleSSE)
	root.Handle("/", withTimeout(timeout, mux))
	return withCORS(opts.CORSOrigins, root)
}

func withTimeout(d time.Duration, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), d)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// withCORS 只对白名单内的 Origin 回写 CORS 头；"*" 表示允许任意来源
func withCORS(origins []string, next http.Handler) http.Handler {
	allowed := make(map[string]bool, len(origins))
	wildcard := false
	for _, o := range origins {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o == "*" {
			wildcard = true
			continue
		}
		if o != "" {
			allowed[o] = true
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && (wildcard || allowed[origin]) {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Add("Vary", "Origin")
			h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type")
			h.Set("Access-Control-Max-Age", "600")
		}
		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
