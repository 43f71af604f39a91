package devices

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"io"

	"github.com/klauspost/compress/zlib"
	"github.com/mobile-next/adbctl/adb/wire"
)

const (
	screencapHeaderLen           = 12
	screencapColorspaceHeaderLen = 16

	// first SDK whose screencap header carries a colorspace field
	screencapColorspaceSDK = 28
)

var pngSignature = []byte("\x89PNG\r\n\x1a\n")

func screencapHeaderSize(sdk int) int {
	if sdk >= screencapColorspaceSDK {
		return screencapColorspaceHeaderLen
	}
	return screencapHeaderLen
}

// decodeScreencap decodes the raw output of `screencap`: a little-endian
// header (width, height, pixel format, and colorspace from SDK 28) followed
// by tightly packed RGBA rows.
func decodeScreencap(data []byte, sdk int, colors ColorManager) (*image.NRGBA, error) {
	headerLen := screencapHeaderSize(sdk)
	if len(data) < headerLen {
		return nil, &wire.ShortReadError{What: "screencap header", Got: len(data), Want: headerLen}
	}

	width := binary.LittleEndian.Uint32(data[0:4])
	height := binary.LittleEndian.Uint32(data[4:8])
	colorspace := ColorspaceUnknown
	if headerLen == screencapColorspaceHeaderLen {
		colorspace = Colorspace(binary.LittleEndian.Uint32(data[12:16]))
	}

	size := uint64(width) * uint64(height) * 4
	if have := uint64(len(data) - headerLen); have < size {
		return nil, &wire.ShortReadError{What: "screencap pixels", Got: int(have), Want: int(size)}
	}
	if width == 0 || height == 0 {
		return nil, fmt.Errorf("screencap reported an empty %dx%d screen", width, height)
	}

	img := &image.NRGBA{
		Pix:    data[headerLen : uint64(headerLen)+size],
		Stride: int(width) * 4,
		Rect:   image.Rect(0, 0, int(width), int(height)),
	}
	if colorspace == ColorspaceP3 {
		return colors.DisplayP3ToSRGB(img)
	}
	return img, nil
}

// decodePNG decodes `screencap -p` output and normalizes an embedded ICC
// profile to standard RGB.
func decodePNG(data []byte, colors ColorManager) (*image.NRGBA, error) {
	decoded, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode png screenshot: %w", err)
	}
	img := toNRGBA(decoded)

	profile, err := pngICCProfile(data)
	if err != nil {
		return nil, err
	}
	if profile != nil {
		return colors.ConvertICC(img, profile)
	}
	return img, nil
}

func toNRGBA(src image.Image) *image.NRGBA {
	if img, ok := src.(*image.NRGBA); ok {
		return img
	}
	b := src.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Rect, src, b.Min, draw.Src)
	return dst
}

// pngICCProfile returns the inflated iCCP chunk, or nil if there is none.
func pngICCProfile(data []byte) ([]byte, error) {
	if !bytes.HasPrefix(data, pngSignature) {
		return nil, nil
	}

	pos := len(pngSignature)
	for pos+8 <= len(data) {
		length := int(binary.BigEndian.Uint32(data[pos : pos+4]))
		kind := string(data[pos+4 : pos+8])
		start := pos + 8
		end := start + length
		if length < 0 || end+4 > len(data) {
			return nil, nil
		}

		switch kind {
		case "iCCP":
			chunk := data[start:end]
			// profile name, NUL, compression method, zlib stream
			nul := bytes.IndexByte(chunk, 0)
			if nul < 0 || nul+2 > len(chunk) {
				return nil, fmt.Errorf("malformed iCCP chunk")
			}
			r, err := zlib.NewReader(bytes.NewReader(chunk[nul+2:]))
			if err != nil {
				return nil, fmt.Errorf("iCCP profile: %w", err)
			}
			defer r.Close()
			return io.ReadAll(r)
		case "IDAT", "IEND":
			return nil, nil
		}
		pos = end + 4
	}
	return nil, nil
}
