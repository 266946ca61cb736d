//go:build windows

package engine

import (
	"errors"
	"fmt"
	"os"
	"syscall"
	"unsafe"
)

// addLibraryDir puts dir on the DLL search path so onnxruntime.dll can find
// its provider DLLs (DirectML, CUDA) shipped next to it.
func addLibraryDir(dir string) error {
	k32 := syscall.NewLazyDLL("kernel32.dll")
	procSetDllDirectoryW := k32.NewProc("SetDllDirectoryW")
	ptr, err := syscall.UTF16PtrFromString(dir)
	if err != nil {
		return err
	}
	ret, _, callErr := procSetDllDirectoryW.Call(uintptr(unsafe.Pointer(ptr)))
	if ret == 0 {
		old := os.Getenv("PATH")
		_ = os.Setenv("PATH", dir+";"+old)
		if callErr != nil && !errors.Is(callErr, syscall.Errno(0)) {
			return fmt.Errorf("SetDllDirectoryW failed: %v", callErr)
		}
	}
	return nil
}
