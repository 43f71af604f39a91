package commands

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mobile-next/adbctl/utils"
)

// ScreenshotRequest represents the parameters for taking a screenshot
type ScreenshotRequest struct {
	DeviceID   string `json:"deviceId"`
	Format     string `json:"format,omitempty"`     // "png" or "jpeg"
	Quality    int    `json:"quality,omitempty"`    // 1-100, only used for JPEG
	OutputPath string `json:"outputPath,omitempty"` // file path, "-" for stdout, or empty for default naming
	// Cached allows a frame younger than the configured rate limit.
	Cached bool `json:"cached,omitempty"`
}

// ScreenshotResponse represents the response for a screenshot command
type ScreenshotResponse struct {
	Format    string `json:"format"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Timestamp int64  `json:"timestamp,omitempty"` // device capture time, ms since epoch
	Data      string `json:"data,omitempty"`      // base64 encoded image data
	FilePath  string `json:"filePath,omitempty"`  // path where file was saved
}

// ScreenshotCommand takes a screenshot of the specified device
func ScreenshotCommand(req ScreenshotRequest) *CommandResponse {
	// Set default format
	if req.Format == "" {
		req.Format = "png"
	}

	// Validate format
	req.Format = strings.ToLower(req.Format)
	if req.Format == "jpg" {
		req.Format = "jpeg"
	}
	if req.Format != "png" && req.Format != "jpeg" {
		return NewErrorResponse(fmt.Errorf("invalid format '%s'. Supported formats are 'png' and 'jpeg'", req.Format))
	}

	// Validate JPEG quality
	if req.Format == "jpeg" {
		if req.Quality < 1 || req.Quality > 100 {
			req.Quality = utils.DefaultJPEGQuality
		}
	}

	targetDevice, controller, err := findController(req.DeviceID)
	if err != nil {
		return NewErrorResponse(err)
	}

	frame, err := controller.Screenshot(req.Cached)
	if err != nil {
		return NewErrorResponse(fmt.Errorf("error taking screenshot: %v", err))
	}

	imageBytes, err := utils.EncodeImage(frame.Image, req.Format, req.Quality)
	if err != nil {
		return NewErrorResponse(fmt.Errorf("error encoding %s: %v", req.Format, err))
	}

	response := ScreenshotResponse{
		Format: req.Format,
		Width:  frame.Width(),
		Height: frame.Height(),
	}
	if !frame.Timestamp.IsZero() {
		response.Timestamp = frame.Timestamp.UnixMilli()
	}

	// Handle output
	if req.OutputPath == "-" {
		// Return as base64 data for stdout
		response.Data = base64.StdEncoding.EncodeToString(imageBytes)
		return NewSuccessResponse(response)
	}

	finalPath, err := screenshotPath(req, targetDevice.ID())
	if err != nil {
		return NewErrorResponse(err)
	}

	err = os.WriteFile(finalPath, imageBytes, 0o600)
	if err != nil {
		return NewErrorResponse(fmt.Errorf("error writing file: %v", err))
	}

	response.FilePath = finalPath
	return NewSuccessResponse(response)
}

func screenshotPath(req ScreenshotRequest, deviceID string) (string, error) {
	if req.OutputPath != "" {
		finalPath, err := filepath.Abs(req.OutputPath)
		if err != nil {
			return "", fmt.Errorf("invalid output path: %v", err)
		}
		return finalPath, nil
	}

	// Default filename generation
	timestamp := time.Now().Format("20060102150405")
	safeDeviceID := strings.ReplaceAll(deviceID, ":", "_")
	extension := "png"
	if req.Format == "jpeg" {
		extension = "jpg"
	}
	fileName := fmt.Sprintf("screenshot-%s-%s.%s", safeDeviceID, timestamp, extension)
	finalPath, err := filepath.Abs("./" + fileName)
	if err != nil {
		return "", fmt.Errorf("error creating default path: %v", err)
	}
	return finalPath, nil
}
