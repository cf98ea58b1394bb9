package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"

	"github.com/kozaktomas/facegate/internal/imaging"
)

const (
	defaultModelServerURL = "http://localhost:5001"
	defaultModel          = "sface"
)

// ModelClient extracts face embeddings via the model server's /embed/face
// endpoint. Concurrent extractions are capped so a burst of uploads cannot
// overload the model server.
type ModelClient struct {
	baseURL string
	model   string
	dim     int // expected embedding dimension; 0 accepts what the server reports
	policy  QualityPolicy
	client  *http.Client
	sem     chan struct{}
}

// NewModelClient creates a client for the face model server.
func NewModelClient(baseURL, model string, dim, concurrency int, policy QualityPolicy) *ModelClient {
	if baseURL == "" {
		baseURL = defaultModelServerURL
	}
	if model == "" {
		model = defaultModel
	}
	if concurrency < 1 {
		concurrency = 1
	}
	return &ModelClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		model:   model,
		dim:     dim,
		policy:  policy,
		client:  &http.Client{},
		sem:     make(chan struct{}, concurrency),
	}
}

// faceResponse is the model server's response for /embed/face.
type faceResponse struct {
	FacesCount int    `json:"faces_count"`
	Faces      []Face `json:"faces"`
	Model      string `json:"model"`
}

// ModelName returns the embedding model this client is configured for.
func (c *ModelClient) ModelName() string {
	return c.model
}

func (c *ModelClient) acquire(ctx context.Context) error {
	select {
	case c.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *ModelClient) release() {
	<-c.sem
}

// Extract runs the full pipeline for one image: decode and downscale, check
// image quality, request face embeddings from the model server, pick the
// primary face and apply the face quality gates.
func (c *ModelClient) Extract(ctx context.Context, data []byte) (*Result, error) {
	prepared, info, err := imaging.Prepare(data, c.policy.MaxImageSize)
	if err != nil {
		return nil, err
	}

	if c.policy.MinImageEdge > 0 && (info.Width < c.policy.MinImageEdge || info.Height < c.policy.MinImageEdge) {
		return nil, &LowQualityError{
			Reason: fmt.Sprintf("image is %dx%d, minimum edge is %dpx", info.Width, info.Height, c.policy.MinImageEdge),
		}
	}

	if err := c.acquire(ctx); err != nil {
		return nil, err
	}
	defer c.release()

	body, err := c.postMultipartImage(ctx, "/embed/face", prepared)
	if err != nil {
		return nil, err
	}

	var faceResp faceResponse
	if err := json.Unmarshal(body, &faceResp); err != nil {
		return nil, fmt.Errorf("failed to parse model server response: %w", err)
	}

	if faceResp.FacesCount == 0 || len(faceResp.Faces) == 0 {
		return nil, ErrNoFaceDetected
	}

	primary, err := selectPrimary(faceResp.Faces, info.PreparedWidth, c.policy)
	if err != nil {
		return nil, err
	}

	if len(primary.Embedding) == 0 {
		return nil, fmt.Errorf("model server returned empty embedding")
	}

	if c.dim > 0 && len(primary.Embedding) != c.dim {
		return nil, fmt.Errorf("model server returned %d-dimensional embedding, expected %d",
			len(primary.Embedding), c.dim)
	}

	model := faceResp.Model
	if model == "" {
		model = c.model
	}

	return &Result{
		Embedding: primary.Embedding,
		Dim:       len(primary.Embedding),
		Model:     model,
		BBox:      primary.BBox,
		DetScore:  primary.DetScore,
		FaceCount: faceResp.FacesCount,
	}, nil
}

// Ping checks whether the model server is reachable. Any response proves
// reachability; only transport failures and 5xx statuses count as down.
func (c *ModelClient) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	return nil
}

// postMultipartImage constructs a multipart form with the image data and posts
// it to the given endpoint. The part carries an explicit Content-Type header
// based on magic byte detection.
func (c *ModelClient) postMultipartImage(ctx context.Context, endpoint string, imageData []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="image.jpg"`)
	h.Set("Content-Type", detectMIMEType(imageData))
	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}

	if _, err := part.Write(imageData); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, string(body))
	}

	return body, nil
}

// detectMIMEType detects the MIME type from image data
func detectMIMEType(data []byte) string {
	if len(data) < 8 {
		return "application/octet-stream"
	}
	// JPEG: FF D8 FF
	if data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF {
		return "image/jpeg"
	}
	// PNG: 89 50 4E 47 0D 0A 1A 0A
	if data[0] == 0x89 && data[1] == 0x50 && data[2] == 0x4E && data[3] == 0x47 {
		return "image/png"
	}
	// GIF: 47 49 46 38
	if data[0] == 0x47 && data[1] == 0x49 && data[2] == 0x46 && data[3] == 0x38 {
		return "image/gif"
	}
	// WebP: 52 49 46 46 ... 57 45 42 50
	if len(data) >= 12 && data[0] == 0x52 && data[1] == 0x49 && data[2] == 0x46 && data[3] == 0x46 &&
		data[8] == 0x57 && data[9] == 0x45 && data[10] == 0x42 && data[11] == 0x50 {
		return "image/webp"
	}
	return "application/octet-stream"
}
