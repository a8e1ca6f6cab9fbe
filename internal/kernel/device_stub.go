//go:build !linux

package kernel

import "fmt"

// OpenDevice is unavailable off Linux; the ioctl interface is a Linux
// character device. Use NewMemory for local development.
func OpenDevice(path string) (Bridge, error) {
	return nil, fmt.Errorf("kernel device %s requires linux", path)
}
