package media

import (
	"image"

	"github.com/kbinani/screenshot"

	"github.com/sightline-ai/sightline/pkg/core"
)

// FrameSource yields raw frames for the outbound video stream.
type FrameSource interface {
	Grab() (image.Image, error)
}

// ScreenSource captures the primary display. It stands in for a camera on
// platforms without one and is useful for desktop narration.
type ScreenSource struct {
	display int
}

// NewScreenSource returns a ScreenSource for the primary display, or a
// device error when no display is attached.
func NewScreenSource() (*ScreenSource, error) {
	if screenshot.NumActiveDisplays() == 0 {
		return nil, core.NewDeviceUnavailableError("no active display")
	}
	return &ScreenSource{display: 0}, nil
}

// Grab captures one frame of the display.
func (s *ScreenSource) Grab() (image.Image, error) {
	img, err := screenshot.CaptureDisplay(s.display)
	if err != nil {
		return nil, core.NewDeviceUnavailableError("screen capture failed: " + err.Error())
	}
	return img, nil
}
