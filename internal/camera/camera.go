// Package camera owns the video capture device and produces base64
// JPEG frames on demand for the scanning session.
package camera

import (
	"encoding/base64"
	"fmt"
	"sync"

	"gocv.io/x/gocv"
)

// DeviceError indicates the capture device is unavailable or refused to open.
type DeviceError struct {
	Device int
	Err    error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("camera device %d unavailable: %v", e.Device, e.Err)
}

func (e *DeviceError) Unwrap() error {
	return e.Err
}

// Capture is one active camera acquisition. It is exclusively owned by a
// single scanning session and must be released exactly once per acquisition;
// Close is idempotent so every termination path may call it.
type Capture struct {
	mu       sync.Mutex
	device   *gocv.VideoCapture
	mat      gocv.Mat
	quality  int
	released bool
}

// Acquire opens the capture device and configures its output geometry.
func Acquire(device, width, height, quality int) (*Capture, error) {
	vc, err := gocv.VideoCaptureDevice(device)
	if err != nil {
		return nil, &DeviceError{Device: device, Err: err}
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, &DeviceError{Device: device, Err: fmt.Errorf("device did not open")}
	}

	vc.Set(gocv.VideoCaptureFrameWidth, float64(width))
	vc.Set(gocv.VideoCaptureFrameHeight, float64(height))

	return &Capture{
		device:  vc,
		mat:     gocv.NewMat(),
		quality: quality,
	}, nil
}

// Frame samples the current video image and returns it as a base64-encoded
// JPEG. ok is false when the device has not yet produced a usable frame or
// the capture has been released.
func (c *Capture) Frame() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.released {
		return "", false
	}
	if ok := c.device.Read(&c.mat); !ok || c.mat.Empty() {
		return "", false
	}

	buf, err := gocv.IMEncodeWithParams(".jpg", c.mat, []int{gocv.IMWriteJpegQuality, c.quality})
	if err != nil {
		return "", false
	}
	defer buf.Close()

	return base64.StdEncoding.EncodeToString(buf.GetBytes()), true
}

// Close stops capture and frees the device. Safe to call multiple times.
func (c *Capture) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.released {
		return
	}
	c.released = true
	c.mat.Close()
	c.device.Close()
}
