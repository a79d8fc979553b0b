//go:build windows

package hotkey

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"syscall"
	"time"
	"unsafe"

	"github.com/siddug/wave-sub000/internal/logging"
	"github.com/siddug/wave-sub000/internal/shortcut"
)

const (
	whKeyboardLL  = 13
	wmKeyDown     = 0x0100
	wmKeyUp       = 0x0101
	wmSysKeyDown  = 0x0104
	wmSysKeyUp    = 0x0105
	wmQuit        = 0x0012
	llkhfInjected = 0x10
)

type kbdllHookStruct struct {
	vkCode      uint32
	scanCode    uint32
	flags       uint32
	time        uint32
	dwExtraInfo uintptr
}

type winMsg struct {
	Hwnd    uintptr
	Message uint32
	WParam  uintptr
	LParam  uintptr
	Time    uint32
	Pt_x    int32
	Pt_y    int32
}

var (
	user32                  = syscall.NewLazyDLL("user32.dll")
	kernel32                = syscall.NewLazyDLL("kernel32.dll")
	procSetWindowsHookExW   = user32.NewProc("SetWindowsHookExW")
	procUnhookWindowsHookEx = user32.NewProc("UnhookWindowsHookEx")
	procCallNextHookEx      = user32.NewProc("CallNextHookEx")
	procGetMessageW         = user32.NewProc("GetMessageW")
	procPostThreadMessageW  = user32.NewProc("PostThreadMessageW")
	procGetCurrentThreadId  = kernel32.NewProc("GetCurrentThreadId")
)

type hookSource struct {
	events   chan shortcut.KeyEvent
	threadID uintptr
	done     chan struct{}
	once     sync.Once
}

// Open installs a low-level keyboard hook (WH_KEYBOARD_LL) on a dedicated OS
// thread and streams every non-injected key transition.
func Open(opts Options) (Source, error) {
	log := logging.NewLogger(context.Background()).WithComponent("hotkey")
	s := &hookSource{
		events: make(chan shortcut.KeyEvent, opts.buffer()),
		done:   make(chan struct{}),
	}
	errCh := make(chan error, 1)

	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		defer close(s.done)

		tid, _, _ := procGetCurrentThreadId.Call()
		s.threadID = tid

		tracker := NewTracker()
		swallowed := make(map[uint32]bool)

		callback := syscall.NewCallback(func(nCode, wParam, lParam uintptr) uintptr {
			if int32(nCode) < 0 {
				ret, _, _ := procCallNextHookEx.Call(0, nCode, wParam, lParam)
				return ret
			}
			k := (*kbdllHookStruct)(unsafe.Pointer(lParam))
			if k.flags&llkhfInjected != 0 {
				ret, _, _ := procCallNextHookEx.Call(0, nCode, wParam, lParam)
				return ret
			}

			msg := uint32(wParam)
			down := msg == wmKeyDown || msg == wmSysKeyDown
			up := msg == wmKeyUp || msg == wmSysKeyUp
			if down || up {
				if ev, ok := tracker.Translate(k.vkCode, down, time.Now()); ok {
					if opts.Debug {
						log.Debugf("event %s vk=0x%X mod=0x%X", ev.Kind, ev.KeyCode, uint32(ev.Modifiers))
					}
					select {
					case s.events <- ev:
					default:
						log.Warnf("event buffer full; dropped %s vk=0x%X", ev.Kind, ev.KeyCode)
					}
					if down && ev.Kind == shortcut.KeyDown && opts.Swallow != nil && opts.Swallow(ev) {
						swallowed[k.vkCode] = true
						return uintptr(1)
					}
				}
				if up && swallowed[k.vkCode] {
					delete(swallowed, k.vkCode)
					return uintptr(1)
				}
			}

			ret, _, _ := procCallNextHookEx.Call(0, nCode, wParam, lParam)
			return ret
		})

		hook, _, _ := procSetWindowsHookExW.Call(uintptr(whKeyboardLL), callback, 0, 0)
		if hook == 0 {
			errCh <- fmt.Errorf("SetWindowsHookExW failed")
			return
		}
		log.Debug("low-level hook installed (WH_KEYBOARD_LL)")
		errCh <- nil

		var msg winMsg
		for {
			ret, _, _ := procGetMessageW.Call(uintptr(unsafe.Pointer(&msg)), 0, 0, 0)
			if int32(ret) == -1 {
				log.Error("GetMessageW error; exiting low-level hook loop")
				break
			}
			if ret == 0 {
				break
			}
		}

		procUnhookWindowsHookEx.Call(hook)
		close(s.events)
		log.Debug("low-level hook uninstalled")
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return nil, err
		}
		return s, nil
	case <-time.After(2 * time.Second):
		return nil, fmt.Errorf("timeout installing low-level hook")
	}
}

func (s *hookSource) Events() <-chan shortcut.KeyEvent { return s.events }

// Close stops the hook thread and waits for the hook to be removed.
func (s *hookSource) Close() error {
	s.once.Do(func() {
		procPostThreadMessageW.Call(s.threadID, wmQuit, 0, 0)
		<-s.done
	})
	return nil
}
