// Package embedding turns uploaded face photos into embedding vectors using
// an external model server and applies quality gates to the detected faces.
package embedding

import "context"

// Face is a single detected face as reported by the model server.
type Face struct {
	Index     int       `json:"face_index"`
	Dim       int       `json:"dim"`
	Embedding []float32 `json:"embedding"`
	BBox      []float64 `json:"bbox"` // [x1, y1, x2, y2] in prepared-image pixels
	DetScore  float64   `json:"det_score"`
}

// Result is the embedding of the primary face of one image.
type Result struct {
	Embedding []float32
	Dim       int
	Model     string
	BBox      []float64
	DetScore  float64
	FaceCount int // total faces the detector reported
}

// Extractor produces a face embedding from raw image bytes. Implementations
// must return ErrNoFaceDetected, ErrAmbiguousFaces or LowQualityError when
// the image does not contain exactly one usable face.
type Extractor interface {
	Extract(ctx context.Context, image []byte) (*Result, error)
	Ping(ctx context.Context) error
	ModelName() string
}
