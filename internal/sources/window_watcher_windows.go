//go:build windows

package sources

import (
	"context"
	"regexp"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/gatewatch/sentinel/internal/config"
	"github.com/gatewatch/sentinel/internal/events"
)

// windowWatcher emits WindowFocused/WindowCreated/WindowDestroyed events
// via a SetWinEventHook global hook, grounded on
// original_source/engine/src/plugins/window_watcher.rs's WindowEventPlugin
// (EVENT_SYSTEM_FOREGROUND/EVENT_OBJECT_CREATE/EVENT_OBJECT_DESTROY with
// WINEVENT_OUTOFCONTEXT|WINEVENT_SKIPOWNPROCESS). gopher-lua-style manual
// syscall plumbing is avoided in favour of user32.dll NewLazySystemDLL
// calls, matching actions/media_windows.go's idiom, since x/sys/windows
// does not wrap SetWinEventHook directly.
type windowWatcher struct {
	name           string
	titleFilter    *regexp.Regexp
	processFilter  *regexp.Regexp

	running atomic.Bool
	mu      sync.Mutex
	hooks   []uintptr
	stop    chan struct{}
	done    chan struct{}

	emitterRef events.Emitter
}

var (
	user32Wnd               = windows.NewLazySystemDLL("user32.dll")
	procSetWinEventHook     = user32Wnd.NewProc("SetWinEventHook")
	procUnhookWinEvent      = user32Wnd.NewProc("UnhookWinEvent")
	procGetWindowTextW      = user32Wnd.NewProc("GetWindowTextW")
	procGetClassNameW       = user32Wnd.NewProc("GetClassNameW")
	procGetWindowThreadPID  = user32Wnd.NewProc("GetWindowThreadProcessId")

	procPeekMessageW     = user32Wnd.NewProc("PeekMessageW")
	procTranslateMessage = user32Wnd.NewProc("TranslateMessage")
	procDispatchMessageW = user32Wnd.NewProc("DispatchMessageW")

	kernel32Wnd             = windows.NewLazySystemDLL("kernel32.dll")
	procQueryFullImageNameW = kernel32Wnd.NewProc("QueryFullProcessImageNameW")
)

// msg mirrors the Win32 MSG struct layout, needed only to give
// PeekMessageW/DispatchMessageW a correctly sized buffer.
type msg struct {
	hwnd    uintptr
	message uint32
	wParam  uintptr
	lParam  uintptr
	time    uint32
	pt      struct{ x, y int32 }
}

const pmRemove = 0x0001

// pumpMessagesOnce drains any pending message for this thread so the
// hooks registered with WINEVENT_OUTOFCONTEXT keep getting delivered,
// then yields briefly when the queue is empty.
func pumpMessagesOnce() {
	var m msg
	ret, _, _ := procPeekMessageW.Call(uintptr(unsafe.Pointer(&m)), 0, 0, 0, pmRemove)
	if ret == 0 {
		time.Sleep(15 * time.Millisecond)
		return
	}
	procTranslateMessage.Call(uintptr(unsafe.Pointer(&m)))
	procDispatchMessageW.Call(uintptr(unsafe.Pointer(&m)))
}

const (
	eventSystemForeground = 0x0003
	eventObjectCreate     = 0x8000
	eventObjectDestroy    = 0x8001
	winEventOutOfContext  = 0x0000
	winEventSkipOwnThread = 0x0002
)

var (
	activeWatcherMu sync.Mutex
	activeWatchers  = map[uintptr]*windowWatcher{}
)

func newWindowWatcher(sc config.SourceConfig) (Source, error) {
	w := &windowWatcher{name: sc.Name}
	if sc.TitlePattern != "" {
		re, err := regexp.Compile(sc.TitlePattern)
		if err != nil {
			return nil, configErr("window_watcher %q: invalid title_pattern: %v", sc.Name, err)
		}
		w.titleFilter = re
	}
	if sc.ProcessPattern != "" {
		re, err := regexp.Compile(sc.ProcessPattern)
		if err != nil {
			return nil, configErr("window_watcher %q: invalid process_pattern: %v", sc.Name, err)
		}
		w.processFilter = re
	}
	return w, nil
}

func (w *windowWatcher) Name() string { return w.name }

func (w *windowWatcher) Start(ctx context.Context, emit events.Emitter) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running.Load() {
		return nil
	}

	w.stop = make(chan struct{})
	w.done = make(chan struct{})
	w.emitterRef = emit
	w.running.Store(true)
	go w.runMessageLoop(ctx, emit)
	return nil
}

// runMessageLoop must own the thread that registers the hooks: Win32
// event hooks deliver callbacks on the thread that called
// SetWinEventHook and pumps its message queue, so this goroutine is
// locked to its OS thread for its entire lifetime.
func (w *windowWatcher) runMessageLoop(ctx context.Context, emit events.Emitter) {
	defer close(w.done)
	defer w.running.Store(false)

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	cb := syscall.NewCallback(winEventCallback)

	h1, _, _ := procSetWinEventHook.Call(eventSystemForeground, eventSystemForeground, 0, cb, 0, 0, winEventOutOfContext|winEventSkipOwnThread)
	h2, _, _ := procSetWinEventHook.Call(eventObjectCreate, eventObjectCreate, 0, cb, 0, 0, winEventOutOfContext|winEventSkipOwnThread)
	h3, _, _ := procSetWinEventHook.Call(eventObjectDestroy, eventObjectDestroy, 0, cb, 0, 0, winEventOutOfContext|winEventSkipOwnThread)
	w.hooks = []uintptr{h1, h2, h3}

	activeWatcherMu.Lock()
	for _, h := range w.hooks {
		activeWatchers[h] = w
	}
	activeWatcherMu.Unlock()

	defer func() {
		activeWatcherMu.Lock()
		for _, h := range w.hooks {
			delete(activeWatchers, h)
			procUnhookWinEvent.Call(h)
		}
		activeWatcherMu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		default:
		}
		pumpMessagesOnce()
	}
}

func (w *windowWatcher) handleEvent(kind events.Kind, hwnd uintptr, emit events.Emitter) {
	title := windowTitle(hwnd)
	class := windowClassName(hwnd)
	pid, exe := windowProcessInfo(hwnd)

	if w.titleFilter != nil && !w.titleFilter.MatchString(title) {
		return
	}
	if w.processFilter != nil && !w.processFilter.MatchString(exe) {
		return
	}

	ev := events.New(kind, w.name).
		WithMetadata("title", title).
		WithMetadata("class", class).
		WithMetadata("exe", exe).
		WithMetadata("pid", strconv.FormatUint(uint64(pid), 10))
	emit.Emit(ev)
}

func winEventCallback(hWinEventHook, event, hwnd, idObject, idChild, idEventThread, dwmsEventTime uintptr) uintptr {
	activeWatcherMu.Lock()
	w, ok := activeWatchers[hWinEventHook]
	activeWatcherMu.Unlock()
	if !ok || w.emitterRef == nil {
		return 0
	}

	switch event {
	case eventSystemForeground:
		w.handleEvent(events.KindWindowFocused, hwnd, w.emitterRef)
	case eventObjectCreate:
		w.handleEvent(events.KindWindowCreated, hwnd, w.emitterRef)
	case eventObjectDestroy:
		w.handleEvent(events.KindWindowDestroyed, hwnd, w.emitterRef)
	}
	return 0
}

func windowTitle(hwnd uintptr) string {
	buf := make([]uint16, 256)
	n, _, _ := procGetWindowTextW.Call(hwnd, uintptr(unsafe.Pointer(&buf[0])), uintptr(len(buf)))
	return windows.UTF16ToString(buf[:n])
}

func windowClassName(hwnd uintptr) string {
	buf := make([]uint16, 256)
	n, _, _ := procGetClassNameW.Call(hwnd, uintptr(unsafe.Pointer(&buf[0])), uintptr(len(buf)))
	return windows.UTF16ToString(buf[:n])
}

func windowProcessInfo(hwnd uintptr) (pid uint32, exe string) {
	procGetWindowThreadPID.Call(hwnd, uintptr(unsafe.Pointer(&pid)))
	if pid == 0 {
		return 0, ""
	}
	h, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, pid)
	if err != nil {
		return pid, ""
	}
	defer windows.CloseHandle(h)

	buf := make([]uint16, 260)
	size := uint32(len(buf))
	ret, _, _ := procQueryFullImageNameW.Call(uintptr(h), 0, uintptr(unsafe.Pointer(&buf[0])), uintptr(unsafe.Pointer(&size)))
	if ret == 0 {
		return pid, ""
	}
	return pid, windows.UTF16ToString(buf[:size])
}

func (w *windowWatcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running.Load() {
		return nil
	}
	close(w.stop)
	<-w.done
	w.running.Store(false)
	return nil
}

func (w *windowWatcher) IsRunning() bool { return w.running.Load() }
