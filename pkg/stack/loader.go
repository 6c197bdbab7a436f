// Package stack loads a time-lapse stack stored as one image file per frame.
package stack

import (
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	_ "golang.org/x/image/tiff"

	"spindlefit/internal/log"
	"spindlefit/internal/models"
)

// supportedExtensions are the frame file types LoadDir picks up
var supportedExtensions = map[string]bool{
	".tif":  true,
	".tiff": true,
	".png":  true,
	".jpg":  true,
	".jpeg": true,
}

// LoadDir decodes every frame image in dir. Files are ordered by the
// number embedded in their name (frame_2 before frame_10), then by name.
// All frames must share the dimensions of the first one.
func LoadDir(dir string) ([]*models.Frame, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("error reading stack directory: %w", err)
	}

	var imageFiles []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if supportedExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			imageFiles = append(imageFiles, entry.Name())
		}
	}
	if len(imageFiles) == 0 {
		return nil, fmt.Errorf("no frame images found in %s", dir)
	}

	sort.SliceStable(imageFiles, func(i, j int) bool {
		numI, numJ := extractNumber(imageFiles[i]), extractNumber(imageFiles[j])
		if numI != numJ {
			return numI < numJ
		}
		return imageFiles[i] < imageFiles[j]
	})

	frames := make([]*models.Frame, 0, len(imageFiles))
	for i, name := range imageFiles {
		img, err := loadImage(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("failed to load frame %s: %w", name, err)
		}

		frame := FromImage(i, img)
		if len(frames) > 0 && (frame.Width != frames[0].Width || frame.Height != frames[0].Height) {
			return nil, fmt.Errorf("frame %s is %dx%d, expected %dx%d",
				name, frame.Width, frame.Height, frames[0].Width, frames[0].Height)
		}
		frames = append(frames, frame)
		log.Debugw("loaded frame", "index", i, "file", name, "bitDepth", frame.BitDepth)
	}

	log.Infof("Loaded %d frames with dimensions %dx%d", len(frames), frames[0].Width, frames[0].Height)
	return frames, nil
}

// FromImage converts a decoded image to a frame. 16-bit images keep their
// full range; everything else is converted to 8-bit gray.
func FromImage(index int, img image.Image) *models.Frame {
	b := img.Bounds()
	bitDepth := 8
	switch img.ColorModel() {
	case color.Gray16Model, color.RGBA64Model, color.NRGBA64Model:
		bitDepth = 16
	}

	frame := models.NewFrame(index, b.Dx(), b.Dy(), bitDepth)
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			c := img.At(b.Min.X+x, b.Min.Y+y)
			if bitDepth == 16 {
				frame.Set(x, y, color.Gray16Model.Convert(c).(color.Gray16).Y)
			} else {
				frame.Set(x, y, uint16(color.GrayModel.Convert(c).(color.Gray).Y))
			}
		}
	}
	return frame
}

func loadImage(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, err
	}
	return img, nil
}

// extractNumber returns the digits of a file name as an integer, or -1
func extractNumber(filename string) int {
	base := filepath.Base(filename)
	numStr := ""
	for _, c := range base {
		if c >= '0' && c <= '9' {
			numStr += string(c)
		}
	}

	if numStr != "" {
		num, err := strconv.Atoi(numStr)
		if err == nil {
			return num
		}
	}
	return -1
}
