package capture

import (
	"os"
	"strconv"
	"strings"
)

// isNetworkSource checks if device is an HTTP/RTSP URL
func isNetworkSource(device string) bool {
	return strings.HasPrefix(device, "http://") ||
		strings.HasPrefix(device, "https://") ||
		strings.HasPrefix(device, "rtsp://")
}

// isCameraDevice reports whether source names a V4L2 camera.
func isCameraDevice(source string) bool {
	if _, err := strconv.Atoi(source); err == nil {
		return true
	}
	return strings.HasPrefix(source, "/dev/video")
}

// cameraDevice maps a bare camera index to its device node.
func cameraDevice(source string) string {
	if n, err := strconv.Atoi(source); err == nil {
		return "/dev/video" + strconv.Itoa(n)
	}
	return source
}

// deviceAccessible checks that a local device or file exists and can be
// opened for reading.
func deviceAccessible(path string) error {
	if _, err := os.Stat(path); err != nil {
		return err
	}
	file, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return err
	}
	return file.Close()
}
