package scan

import (
	"errors"
	"image"
)

// Facing selects which capture device to prefer. The rear camera is tried
// first; the front one is the fallback.
type Facing string

const (
	FacingRear  Facing = "environment"
	FacingFront Facing = "user"
)

var (
	// ErrPermissionDenied means the user refused capture access.
	ErrPermissionDenied = errors.New("capture permission denied")
	// ErrNoDevice means no capture device is present for the requested facing.
	ErrNoDevice = errors.New("no capture device found")
	// ErrNoCode is returned by a Decoder when the frame holds no QR code.
	ErrNoCode = errors.New("no code in frame")
	// ErrNotReady is returned by a Device whose next frame is not available
	// yet; the loop just schedules another capture.
	ErrNotReady = errors.New("frame not ready")
)

// Device is an acquired capture device. Exactly one ScanLoop owns a Device
// at a time and must Close it before the same view can reacquire.
type Device interface {
	// Frame captures the current frame. ErrNotReady is not fatal.
	Frame() (image.Image, error)
	Close() error
}

// Opener acquires a capture device for a facing mode.
type Opener interface {
	Open(facing Facing) (Device, error)
}

// ClassifyDeviceError maps an acquisition failure to actionable user text.
func ClassifyDeviceError(err error) string {
	switch {
	case errors.Is(err, ErrPermissionDenied):
		return "Camera access denied. Please allow camera access in browser settings."
	case errors.Is(err, ErrNoDevice):
		return "No camera found. Please connect a camera."
	default:
		return "Camera error: " + err.Error()
	}
}

// Decoder extracts a QR payload from a raw frame. Implementations are
// external to the scan loop; gozxing backs the real one.
type Decoder interface {
	Decode(frame image.Image) (string, error)
}
