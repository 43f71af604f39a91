package devices

import (
	"image"
	"time"
)

type Colorspace int

const (
	ColorspaceUnknown Colorspace = 0
	ColorspaceSRGB    Colorspace = 1
	ColorspaceP3      Colorspace = 2
)

// Frame is one captured screen image in standard RGB.
type Frame struct {
	Image *image.NRGBA
	// Capture time on the device. Zero unless the strategy has
	// CapScreenshotTimestamp.
	Timestamp time.Time
}

func (f *Frame) Width() int {
	return f.Image.Rect.Dx()
}

func (f *Frame) Height() int {
	return f.Image.Rect.Dy()
}

// ColorManager normalizes device color to standard RGB.
type ColorManager interface {
	// DisplayP3ToSRGB converts img in place or returns a converted copy.
	DisplayP3ToSRGB(img *image.NRGBA) (*image.NRGBA, error)
	// ConvertICC converts img from the embedded ICC profile to standard RGB.
	ConvertICC(img *image.NRGBA, profile []byte) (*image.NRGBA, error)
}

// passthroughColors leaves pixels untouched.
type passthroughColors struct{}

func (passthroughColors) DisplayP3ToSRGB(img *image.NRGBA) (*image.NRGBA, error) {
	return img, nil
}

func (passthroughColors) ConvertICC(img *image.NRGBA, _ []byte) (*image.NRGBA, error) {
	return img, nil
}

// alphaAllZero reports whether every pixel is fully transparent, the mark of
// a frame that was never rendered.
func alphaAllZero(img *image.NRGBA) bool {
	for y := img.Rect.Min.Y; y < img.Rect.Max.Y; y++ {
		row := img.Pix[img.PixOffset(img.Rect.Min.X, y):img.PixOffset(img.Rect.Max.X, y)]
		for i := 3; i < len(row); i += 4 {
			if row[i] != 0 {
				return false
			}
		}
	}
	return true
}

func checkFrame(f *Frame) error {
	if f == nil || f.Image == nil || f.Image.Rect.Empty() {
		return unsupported("screenshot", "empty frame")
	}
	if alphaAllZero(f.Image) {
		return unsupported("screenshot", "frame is fully transparent")
	}
	return nil
}
