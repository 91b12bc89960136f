//go:build windows

package window

import (
	"context"
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	user32                  = windows.NewLazySystemDLL("user32.dll")
	procGetWindowTextW      = user32.NewProc("GetWindowTextW")
	procGetWindowRect       = user32.NewProc("GetWindowRect")
	procSetForegroundWindow = user32.NewProc("SetForegroundWindow")
	procShowWindow          = user32.NewProc("ShowWindow")
	procIsIconic            = user32.NewProc("IsIconic")
)

const textBufferLen = 1024

// enumCallback is created once; Windows limits the number of callbacks a
// process may allocate.
var enumCallback = windows.NewCallback(func(hwnd windows.HWND, lparam uintptr) uintptr {
	found := (*[]Info)(unsafe.Pointer(lparam))
	if info, ok := describe(hwnd); ok {
		*found = append(*found, info)
	}
	return 1
})

type user32Controller struct{}

// New returns the user32-backed controller.
func New() Controller {
	return user32Controller{}
}

func (user32Controller) List(ctx context.Context) ([]Info, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	found := []Info{}
	if err := windows.EnumWindows(enumCallback, unsafe.Pointer(&found)); err != nil {
		return nil, fmt.Errorf("enumerating windows: %w", err)
	}
	return found, nil
}

func (user32Controller) Activate(ctx context.Context, handle uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	hwnd := windows.HWND(uintptr(handle))
	if !windows.IsWindow(hwnd) {
		return fmt.Errorf("%w: %d", ErrNotFound, handle)
	}
	if iconic, _, _ := procIsIconic.Call(uintptr(hwnd)); iconic != 0 {
		procShowWindow.Call(uintptr(hwnd), windows.SW_RESTORE)
	}
	if ok, _, err := procSetForegroundWindow.Call(uintptr(hwnd)); ok == 0 {
		return fmt.Errorf("activating window %d: %w", handle, err)
	}
	return nil
}

func describe(hwnd windows.HWND) (Info, bool) {
	if !windows.IsWindowVisible(hwnd) {
		return Info{}, false
	}

	info := Info{Handle: uint64(hwnd)}

	buf := make([]uint16, textBufferLen)
	if n, _, _ := procGetWindowTextW.Call(uintptr(hwnd), uintptr(unsafe.Pointer(&buf[0])), uintptr(len(buf))); n > 0 {
		info.Title = windows.UTF16ToString(buf[:n])
	}
	if n, err := windows.GetClassName(hwnd, &buf[0], int32(len(buf))); err == nil {
		info.ClassName = windows.UTF16ToString(buf[:n])
	}

	var rect windows.Rect
	if ok, _, _ := procGetWindowRect.Call(uintptr(hwnd), uintptr(unsafe.Pointer(&rect))); ok != 0 {
		info.X, info.Y = rect.Left, rect.Top
		info.Width, info.Height = rect.Right-rect.Left, rect.Bottom-rect.Top
	}

	return info, info.listable()
}
