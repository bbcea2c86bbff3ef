// Package vision holds the HTTP clients for the hosted computer-vision
// collaborators: the vehicle/box detector and the license-plate OCR.
// Both normalize their loosely-typed responses at this boundary so the
// rest of the service never branches on wire shapes.
package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/hvaleng/garasje/internal/domain"
)

// DetectorClient calls the hosted vehicle detector.
type DetectorClient struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewDetectorClient builds a client for the detector at baseURL. The
// limiter throttles outbound calls; the hosted API is metered.
func NewDetectorClient(baseURL string, timeout time.Duration, limiter *rate.Limiter, logger *slog.Logger) *DetectorClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &DetectorClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		limiter: limiter,
		logger:  logger,
	}
}

type detectorResponse struct {
	Vehicles       []wireVehicle `json:"vehicles"`
	ProcessedImage string        `json:"processedImage"`
}

type wireVehicle struct {
	Type         string    `json:"type"`
	Confidence   float64   `json:"confidence"`
	BoundingBox  []float64 `json:"boundingBox"`
	Center       []float64 `json:"center"`
	Area         float64   `json:"area"`
	Position     string    `json:"position"`
	LicensePlate *string   `json:"licensePlate"`
}

// DetectVehicles submits an image and returns the detected vehicles plus
// the annotated image the detector renders. An empty or malformed
// vehicle list degrades to zero detections; only transport-level
// failures surface as errors.
func (c *DetectorClient) DetectVehicles(ctx context.Context, image []byte, filename string) ([]domain.Vehicle, string, error) {
	const op = "vision.DetectorClient.DetectVehicles"

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, "", fmt.Errorf("%s:%w", op, err)
		}
	}

	body, err := postImage(ctx, c.client, c.baseURL+"/parking-detection", image, filename)
	if err != nil {
		return nil, "", fmt.Errorf("%s:%w", op, err)
	}

	var resp detectorResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		c.logger.Warn("detector returned malformed payload, treating as zero detections", "error", err)
		return nil, "", nil
	}

	vehicles := make([]domain.Vehicle, 0, len(resp.Vehicles))
	for _, w := range resp.Vehicles {
		v := domain.Vehicle{
			Type:       w.Type,
			Confidence: w.Confidence,
			Area:       w.Area,
			Position:   domain.Position(w.Position),
		}
		if len(w.BoundingBox) >= 4 {
			copy(v.BoundingBox[:], w.BoundingBox[:4])
		}
		if len(w.Center) >= 2 {
			copy(v.Center[:], w.Center[:2])
		}
		if w.LicensePlate != nil {
			v.LicensePlate = *w.LicensePlate
		}
		vehicles = append(vehicles, v)
	}

	return vehicles, resp.ProcessedImage, nil
}

func postImage(ctx context.Context, client *http.Client, url string, image []byte, filename string) ([]byte, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	part, err := mw.CreateFormFile("image", filename)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(image); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}
