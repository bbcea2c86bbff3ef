package vision

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/hvaleng/garasje/internal/domain"
)

// OCRClient calls the hosted license-plate reader.
type OCRClient struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

func NewOCRClient(baseURL string, timeout time.Duration, limiter *rate.Limiter, logger *slog.Logger) *OCRClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &OCRClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		limiter: limiter,
		logger:  logger,
	}
}

type ocrResponse struct {
	LicensePlates []json.RawMessage `json:"license_plates"`
}

type ocrPlate struct {
	Text string          `json:"text"`
	BBox json.RawMessage `json:"bbox"`
}

// ReadPlates submits an image and returns normalized plate detections.
//
// The service answers in two shapes: a bare string array, or objects
// with text and bbox. Both are folded into PlateDetection here; bare
// strings come out with a nil bounding box. Malformed entries are
// dropped, a malformed body degrades to zero plates.
func (c *OCRClient) ReadPlates(ctx context.Context, image []byte, filename string) ([]domain.PlateDetection, error) {
	const op = "vision.OCRClient.ReadPlates"

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%s:%w", op, err)
		}
	}

	body, err := postImage(ctx, c.client, c.baseURL+"/license-plate", image, filename)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	var resp ocrResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		c.logger.Warn("ocr returned malformed payload, treating as zero plates", "error", err)
		return nil, nil
	}

	out := make([]domain.PlateDetection, 0, len(resp.LicensePlates))
	for _, raw := range resp.LicensePlates {
		if p, ok := normalizePlate(raw); ok {
			out = append(out, p)
		}
	}

	return out, nil
}

func normalizePlate(raw json.RawMessage) (domain.PlateDetection, bool) {
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		if text == "" {
			return domain.PlateDetection{}, false
		}
		return domain.PlateDetection{Text: text}, true
	}

	var obj ocrPlate
	if err := json.Unmarshal(raw, &obj); err != nil || obj.Text == "" {
		return domain.PlateDetection{}, false
	}

	return domain.PlateDetection{Text: obj.Text, BoundingBox: normalizeBox(obj.BBox)}, true
}

// normalizeBox accepts a flat number list (4 or 8 values) or a list of
// corner points and flattens it.
func normalizeBox(raw json.RawMessage) []float64 {
	if len(raw) == 0 {
		return nil
	}

	var flat []float64
	if err := json.Unmarshal(raw, &flat); err == nil {
		return flat
	}

	var points [][]float64
	if err := json.Unmarshal(raw, &points); err != nil {
		return nil
	}

	var out []float64
	for _, p := range points {
		if len(p) >= 2 {
			out = append(out, p[0], p[1])
		}
	}
	return out
}
