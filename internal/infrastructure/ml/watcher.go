package ml

import (
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/shopmind/backend/internal/infrastructure/log"
)

// defaultDebounce 同一文件连续事件的合并窗口
const defaultDebounce = 500 * time.Millisecond

// ArtifactWatcher 监听产物目录，产物被替换时回调
type ArtifactWatcher struct {
	dir      string
	names    map[string]struct{}
	onChange func(name string)
	debounce time.Duration
	watcher  *fsnotify.Watcher
	logger   *slog.Logger

	// 防抖相关
	debounceTimers map[string]*time.Timer
	debounceMu     sync.Mutex

	// 控制
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewArtifactWatcher 创建产物监听器，names 为关心的文件名
func NewArtifactWatcher(dir string, names []string, debounce time.Duration, onChange func(name string)) (*ArtifactWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = defaultDebounce
	}

	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}

	return &ArtifactWatcher{
		dir:            dir,
		names:          set,
		onChange:       onChange,
		debounce:       debounce,
		watcher:        watcher,
		logger:         log.NewModuleLogger("ml", "artifact_watcher"),
		debounceTimers: make(map[string]*time.Timer),
		stopCh:         make(chan struct{}),
	}, nil
}

// Start 开始监听
func (aw *ArtifactWatcher) Start() error {
	if err := aw.watcher.Add(aw.dir); err != nil {
		return err
	}
	aw.logger.Info("Watching model artifacts", "dir", aw.dir)

	aw.wg.Add(1)
	go aw.watchLoop()
	return nil
}

// Stop 停止监听
func (aw *ArtifactWatcher) Stop() {
	aw.stopOnce.Do(func() {
		close(aw.stopCh)
		_ = aw.watcher.Close()
		aw.wg.Wait()

		// 取消所有防抖定时器
		aw.debounceMu.Lock()
		for _, timer := range aw.debounceTimers {
			timer.Stop()
		}
		aw.debounceMu.Unlock()

		aw.logger.Info("Artifact watcher stopped")
	})
}

// watchLoop 事件监听循环
func (aw *ArtifactWatcher) watchLoop() {
	defer aw.wg.Done()

	for {
		select {
		case <-aw.stopCh:
			return

		case event, ok := <-aw.watcher.Events:
			if !ok {
				return
			}
			aw.handleFsEvent(event)

		case err, ok := <-aw.watcher.Errors:
			if !ok {
				return
			}
			aw.logger.Error("Watcher error", "error", err)
		}
	}
}

// handleFsEvent 只处理关心的产物文件的写入、创建与重命名
func (aw *ArtifactWatcher) handleFsEvent(event fsnotify.Event) {
	name := filepath.Base(event.Name)
	if _, ok := aw.names[name]; !ok {
		return
	}
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
		return
	}

	aw.debounceMu.Lock()
	defer aw.debounceMu.Unlock()

	if timer, exists := aw.debounceTimers[name]; exists {
		timer.Stop()
	}
	aw.debounceTimers[name] = time.AfterFunc(aw.debounce, func() {
		aw.debounceMu.Lock()
		delete(aw.debounceTimers, name)
		aw.debounceMu.Unlock()

		select {
		case <-aw.stopCh:
			return
		default:
		}
		aw.logger.Debug("Artifact changed", "name", name)
		aw.onChange(name)
	})
}
