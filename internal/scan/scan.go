// Package scan drives a capture device in a frame-by-frame decode loop until
// a QR payload is found, the scanner is reset, or the view is torn down.
package scan

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pavlovicisidora/sep/internal/sched"
)

type State int

const (
	StateIdle State = iota
	StateAcquiringDevice
	StateReady
	StateScanning
	StateDecoded
	StateDeviceError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateAcquiringDevice:
		return "ACQUIRING_DEVICE"
	case StateReady:
		return "READY"
	case StateScanning:
		return "SCANNING"
	case StateDecoded:
		return "DECODED"
	case StateDeviceError:
		return "DEVICE_ERROR"
	default:
		return "UNKNOWN"
	}
}

var ErrScannerClosed = errors.New("scanner closed")

// DefaultFrameInterval approximates one display frame.
const DefaultFrameInterval = 33 * time.Millisecond

// Scanner owns one capture device and feeds frames to an external decoder.
// The first successful decode stops the loop before the payload is forwarded
// to the sink, so no two decodes are ever processed concurrently.
type Scanner struct {
	opener        Opener
	decoder       Decoder
	scheduler     sched.Scheduler
	logger        *zap.Logger
	frameInterval time.Duration
	onPayload     func(payload string)

	mu         sync.Mutex
	state      State
	device     Device
	cancelNext sched.CancelFunc
	userError  string
}

type Config struct {
	Opener    Opener
	Decoder   Decoder
	Scheduler sched.Scheduler
	Logger    *zap.Logger
	// FrameInterval is how long to wait before capturing the next frame
	// when the current one held no code. Defaults to one display frame.
	FrameInterval time.Duration
	// OnPayload receives the first successfully decoded payload.
	OnPayload func(payload string)
}

func New(cfg Config) *Scanner {
	interval := cfg.FrameInterval
	if interval <= 0 {
		interval = DefaultFrameInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scanner{
		opener:        cfg.Opener,
		decoder:       cfg.Decoder,
		scheduler:     cfg.Scheduler,
		logger:        logger,
		frameInterval: interval,
		onPayload:     cfg.OnPayload,
		state:         StateIdle,
	}
}

// Start acquires a device and begins scanning. The rear-facing mode is
// preferred; the front-facing mode is attempted before giving up. Both
// failures produce a classified device error, not a crash.
func (s *Scanner) Start() error {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return errors.New("scanner already started")
	}
	s.state = StateAcquiringDevice
	s.mu.Unlock()

	device, err := s.opener.Open(FacingRear)
	if err != nil {
		s.logger.Debug("rear capture device unavailable, trying front", zap.Error(err))
		device, err = s.opener.Open(FacingFront)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		s.state = StateDeviceError
		s.userError = ClassifyDeviceError(err)
		s.logger.Warn("capture device acquisition failed",
			zap.String("message", s.userError),
			zap.Error(err),
		)
		return err
	}

	s.device = device
	s.state = StateReady

	s.state = StateScanning
	s.scheduleNextLocked(0)
	s.logger.Info("scan loop started")
	return nil
}

func (s *Scanner) scheduleNextLocked(after time.Duration) {
	s.cancelNext = s.scheduler.Schedule(after, s.scanFrame)
}

// scanFrame is one iteration: capture, decode, forward or reschedule. It is
// strictly sequential per frame; a stop between scheduling and firing makes
// it a no-op.
func (s *Scanner) scanFrame() {
	s.mu.Lock()
	if s.state != StateScanning || s.device == nil {
		s.mu.Unlock()
		return
	}
	device := s.device
	s.mu.Unlock()

	frame, err := device.Frame()
	if err != nil {
		if errors.Is(err, ErrNotReady) {
			s.rescheduleIfScanning()
			return
		}
		s.mu.Lock()
		s.state = StateDeviceError
		s.userError = ClassifyDeviceError(err)
		s.mu.Unlock()
		s.logger.Warn("frame capture failed", zap.Error(err))
		return
	}

	payload, err := s.decoder.Decode(frame)
	if err != nil {
		if !errors.Is(err, ErrNoCode) {
			s.logger.Debug("decoder error, continuing", zap.Error(err))
		}
		s.rescheduleIfScanning()
		return
	}

	// Stop scanning before forwarding so a slow sink can never overlap with
	// another decode for this session.
	s.mu.Lock()
	if s.state != StateScanning {
		s.mu.Unlock()
		return
	}
	s.state = StateDecoded
	if s.cancelNext != nil {
		s.cancelNext()
		s.cancelNext = nil
	}
	sink := s.onPayload
	s.mu.Unlock()

	s.logger.Info("QR code detected")
	if sink != nil {
		sink(payload)
	}
}

func (s *Scanner) rescheduleIfScanning() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateScanning {
		return
	}
	s.scheduleNextLocked(s.frameInterval)
}

// Reset returns a terminal scan attempt to the scanning state and resumes
// the loop. The device handle is kept.
func (s *Scanner) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.device == nil {
		return ErrScannerClosed
	}
	if s.state != StateDecoded && s.state != StateDeviceError && s.state != StateScanning {
		return errors.New("scanner not in a resettable state")
	}

	s.userError = ""
	s.state = StateScanning
	s.scheduleNextLocked(0)
	return nil
}

// Close tears the scanner down: any pending capture is cancelled and the
// device handle is released so the view can reacquire it later.
func (s *Scanner) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancelNext != nil {
		s.cancelNext()
		s.cancelNext = nil
	}

	var err error
	if s.device != nil {
		err = s.device.Close()
		s.device = nil
	}
	s.state = StateIdle
	s.logger.Info("scan loop closed")
	return err
}

func (s *Scanner) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// UserError returns the classified message for a device error, empty
// otherwise.
func (s *Scanner) UserError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userError
}
