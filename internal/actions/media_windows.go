//go:build windows

package actions

import (
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	user32           = windows.NewLazySystemDLL("user32.dll")
	procKeybdEvent   = user32.NewProc("keybd_event")
	procMessageBoxW  = user32.NewProc("MessageBoxW")
)

// Virtual key codes for the consumer media keys, per Win32's
// WinUser.h. keybd_event synthesises a key press/release pair, the
// same idiom the teacher's Windows syscall wrappers use for calling
// into user32/ntdll via NewLazySystemDLL.
const (
	vkMediaPlayPause = 0xB3
	vkMediaStop      = 0xB2
)

func sendMediaKey(command string) (Result, error) {
	vk := uintptr(vkMediaPlayPause)
	if command == MediaPause {
		// Windows exposes a single play/pause toggle key; there is no
		// distinct "pause" virtual key, so pause is treated as toggle.
		vk = vkMediaPlayPause
	}
	const keyEventFKeyUp = 0x0002
	procKeybdEvent.Call(vk, 0, 0, 0)
	procKeybdEvent.Call(vk, 0, keyEventFKeyUp, 0)
	return Result{Success: true, Message: "sent media key for " + command}, nil
}

func showNotification(title, message string) (Result, error) {
	titlePtr, err := windows.UTF16PtrFromString(title)
	if err != nil {
		return Result{}, execErr("encoding notification title: %v", err)
	}
	msgPtr, err := windows.UTF16PtrFromString(message)
	if err != nil {
		return Result{}, execErr("encoding notification message: %v", err)
	}
	const mbIconInformation = 0x00000040
	const mbSystemModal = 0x00001000
	// MessageBoxW is used as the minimal built-in notification surface
	// that needs no additional COM/toast plumbing; it blocks until
	// dismissed, which is acceptable because Notify runs on its own
	// worker-pool goroutine, not the dispatcher.
	procMessageBoxW.Call(0, uintptr(unsafe.Pointer(msgPtr)), uintptr(unsafe.Pointer(titlePtr)), uintptr(mbIconInformation|mbSystemModal))
	return Result{Success: true, Message: message}, nil
}
