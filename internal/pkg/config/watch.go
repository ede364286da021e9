package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher 监控配置文件变更，变更后重新加载并回调
// 编辑器保存时常常是"写临时文件再改名"，因此监控所在目录并按文件名过滤
type Watcher struct {
	path     string
	watcher  *fsnotify.Watcher
	onChange func(*Config)
	debounce time.Duration

	mu       sync.Mutex
	running  bool
	stopOnce sync.Once
	stopChan chan struct{}
	done     chan struct{}
	timer    *time.Timer
}

// NewWatcher 创建配置监控器
func NewWatcher(path string, onChange func(*Config)) (*Watcher, error) {
	if path == "" {
		return nil, fmt.Errorf("配置文件路径不能为空")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("获取绝对路径失败: %w", err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("创建文件监控器失败: %w", err)
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("添加监控目录失败: %w", err)
	}

	return &Watcher{
		path:     abs,
		watcher:  fw,
		onChange: onChange,
		debounce: 300 * time.Millisecond,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}, nil
}

// Start 启动监控
func (w *Watcher) Start(ctx context.Context) {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	w.running = true
	w.mu.Unlock()

	slog.Info("配置文件监控启动", "path", w.path)
	go w.watchLoop(ctx)
}

// Stop 停止监控
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopChan)
		_ = w.watcher.Close()

		w.mu.Lock()
		running := w.running
		if w.timer != nil {
			w.timer.Stop()
		}
		w.mu.Unlock()

		if running {
			<-w.done
		}
	})
}

func (w *Watcher) watchLoop(ctx context.Context) {
	defer close(w.done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopChan:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Error("配置文件监控错误", "error", err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != w.path {
		return
	}
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return
	}

	// 防抖：连续事件只触发一次重新加载
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.reload)
}

func (w *Watcher) reload() {
	select {
	case <-w.stopChan:
		return
	default:
	}

	cfg, err := Load(w.path)
	if err != nil {
		slog.Warn("重新加载配置失败，保留当前配置", "path", w.path, "error", err)
		return
	}
	slog.Info("配置文件已变更", "path", w.path)
	if w.onChange != nil {
		w.onChange(cfg)
	}
}

// ApplyRuntime 应用可热更新的配置项（目前只有日志级别）
func ApplyRuntime(cfg *Config) {
	old := LogLevel()
	SetLogLevel(cfg.App.LogLevel)
	if now := LogLevel(); now != old {
		slog.Info("日志级别已更新", "from", old.String(), "to", now.String())
	}
}
