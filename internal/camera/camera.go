// Package camera captures webcam frames and draws recognition results on them.
package camera

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"time"

	"gocv.io/x/gocv"

	"github.com/kozaktomas/face-logger/internal/session"
)

// ErrDeviceUnavailable is returned when the capture device cannot be opened or read.
var ErrDeviceUnavailable = errors.New("camera device unavailable")

var (
	colorKnown   = color.RGBA{R: 0, G: 200, B: 0, A: 0}
	colorUnknown = color.RGBA{R: 220, G: 0, B: 0, A: 0}
	colorWaiting = color.RGBA{R: 230, G: 160, B: 0, A: 0}
	colorText    = color.RGBA{R: 255, G: 255, B: 255, A: 0}
)

// Camera is an open capture device.
type Camera struct {
	capture *gocv.VideoCapture
	device  int
}

// Open opens the capture device and asks it for the given frame rate.
func Open(device, fps int) (*Camera, error) {
	capture, err := gocv.OpenVideoCapture(device)
	if err != nil {
		return nil, fmt.Errorf("%w: device %d: %v", ErrDeviceUnavailable, device, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, fmt.Errorf("%w: device %d", ErrDeviceUnavailable, device)
	}
	if fps > 0 {
		capture.Set(gocv.VideoCaptureFPS, float64(fps))
	}
	return &Camera{capture: capture, device: device}, nil
}

// Close releases the device.
func (c *Camera) Close() error {
	return c.capture.Close()
}

// Read grabs the next frame. The caller closes the returned frame.
func (c *Camera) Read() (*Frame, error) {
	mat := gocv.NewMat()
	if ok := c.capture.Read(&mat); !ok || mat.Empty() {
		mat.Close()
		return nil, fmt.Errorf("%w: device %d returned no frame", ErrDeviceUnavailable, c.device)
	}
	return &Frame{mat: mat, Time: time.Now()}, nil
}

// Frame is one captured image.
type Frame struct {
	mat  gocv.Mat
	Time time.Time
}

// Close releases the frame memory.
func (f *Frame) Close() error {
	return f.mat.Close()
}

// JPEG encodes the frame for the face encoder.
func (f *Frame) JPEG() ([]byte, error) {
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, f.mat)
	if err != nil {
		return nil, fmt.Errorf("IMEncode failed: %w", err)
	}
	defer buf.Close()

	// GetBytes points into C memory freed by Close.
	data := buf.GetBytes()
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// Annotate draws a box and label for every face.
func (f *Frame) Annotate(annotations []session.Annotation) {
	for _, a := range annotations {
		c := colorUnknown
		if a.Known() {
			c = colorKnown
		}
		gocv.Rectangle(&f.mat, a.Box, c, 2)

		labelTop := a.Box.Max.Y
		labelBox := image.Rect(a.Box.Min.X, labelTop, a.Box.Max.X, labelTop+28)
		gocv.Rectangle(&f.mat, labelBox, c, -1)
		gocv.PutText(&f.mat, a.Label, image.Pt(a.Box.Min.X+6, labelTop+21), gocv.FontHersheyDuplex, 0.7, colorText, 1)
	}
}

// Status draws the status line at the top of the frame.
func (f *Frame) Status(text string, outcome session.Outcome) {
	if text == "" {
		return
	}
	c := colorUnknown
	switch outcome {
	case session.OutcomeLogged:
		c = colorKnown
	case session.OutcomeCooldown:
		c = colorWaiting
	}
	gocv.PutText(&f.mat, text, image.Pt(10, 30), gocv.FontHersheyDuplex, 0.8, c, 2)
}

// Window is an on-screen preview.
type Window struct {
	w *gocv.Window
}

// NewWindow opens a preview window.
func NewWindow(title string) *Window {
	return &Window{w: gocv.NewWindow(title)}
}

// Show displays the frame and returns the pressed key or -1.
func (w *Window) Show(f *Frame, wait time.Duration) int {
	w.w.IMShow(f.mat)
	ms := int(wait / time.Millisecond)
	if ms < 1 {
		ms = 1
	}
	return w.w.WaitKey(ms)
}

// Close closes the window.
func (w *Window) Close() error {
	return w.w.Close()
}

// ErrStop ends a Loop without an error.
var ErrStop = errors.New("stop capture loop")

// FrameFunc handles one frame. key is the key pressed while the previous
// frame was on screen, or -1.
type FrameFunc func(ctx context.Context, f *Frame, key int) error

// Loop reads a frame every interval and passes it to fn, then shows it when a
// window is given. It returns when ctx is done, q is pressed, or fn returns
// ErrStop. Any other fn error aborts the loop.
func Loop(ctx context.Context, cam *Camera, win *Window, interval time.Duration, fn FrameFunc) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	key := -1
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		frame, err := cam.Read()
		if err != nil {
			return err
		}

		err = fn(ctx, frame, key)
		if err == nil && win != nil {
			key = win.Show(frame, interval)
		} else {
			key = -1
		}
		frame.Close()

		if errors.Is(err, ErrStop) {
			return nil
		}
		if err != nil {
			return err
		}
		if key == 'q' || key == 'Q' {
			return nil
		}
	}
}
