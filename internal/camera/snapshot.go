// Package camera fetches and downsizes snapshots from network cameras.
package camera

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"

	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/database"
)

// JPEGQuality is used when re-encoding snapshots.
const JPEGQuality = 85

// ErrNotNetworkCamera is returned for cameras that cannot be fetched server-side.
var ErrNotNetworkCamera = errors.New("camera is not an IP camera")

// ErrDisabled is returned for disabled cameras.
var ErrDisabled = errors.New("camera is disabled")

// SnapshotURL builds http://<ip>:<port><path> for an IP camera.
func SnapshotURL(c *database.StoredCamera) (string, error) {
	if !c.IsIP() {
		return "", ErrNotNetworkCamera
	}
	if c.IPAddress == "" {
		return "", fmt.Errorf("camera %s has no IP address", c.ID)
	}
	host := c.IPAddress
	if c.Port > 0 {
		host = net.JoinHostPort(c.IPAddress, strconv.Itoa(c.Port))
	}
	path := c.StreamPath
	if path != "" && !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	u := url.URL{Scheme: "http", Host: host, Path: path}
	return u.String(), nil
}

// Fetcher downloads camera snapshots.
type Fetcher struct {
	client *http.Client
}

// NewFetcher creates a fetcher whose requests time out after timeout.
func NewFetcher(timeout time.Duration) *Fetcher {
	return &Fetcher{client: &http.Client{Timeout: timeout}}
}

// Fetch downloads the current frame of an enabled IP camera. Credentials are
// sent with HTTP basic auth.
func (f *Fetcher) Fetch(ctx context.Context, c *database.StoredCamera) ([]byte, error) {
	if !c.Enabled {
		return nil, ErrDisabled
	}
	target, err := SnapshotURL(c)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("creating snapshot request: %w", err)
	}
	if c.Username != "" {
		req.SetBasicAuth(c.Username, c.Password)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching snapshot: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("camera responded with status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, constants.MaxSnapshotBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}
	if len(data) > constants.MaxSnapshotBytes {
		return nil, fmt.Errorf("snapshot exceeds %d bytes", constants.MaxSnapshotBytes)
	}
	return data, nil
}

// ResizeJPEG decodes an image and re-encodes it as JPEG so that neither side
// exceeds maxSize, keeping the aspect ratio.
func ResizeJPEG(data []byte, maxSize int) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	out := img
	if width > maxSize || height > maxSize {
		var newWidth, newHeight int
		if width > height {
			newWidth = maxSize
			newHeight = max(1, int(float64(height)*float64(maxSize)/float64(width)))
		} else {
			newHeight = maxSize
			newWidth = max(1, int(float64(width)*float64(maxSize)/float64(height)))
		}
		resized := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
		draw.CatmullRom.Scale(resized, resized.Bounds(), img, bounds, draw.Over, nil)
		out = resized
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, out, &jpeg.Options{Quality: JPEGQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return buf.Bytes(), nil
}
