package embedding

import "errors"

var (
	// ErrNoFaceDetected is returned when the detector finds no face at all.
	ErrNoFaceDetected = errors.New("no face detected in image")

	// ErrAmbiguousFaces is returned when a second face is close enough in
	// size to the primary one that the subject of the photo is unclear.
	ErrAmbiguousFaces = errors.New("multiple comparable faces in image")

	// ErrUnavailable is returned when the model server cannot be reached
	// or responds with an error status.
	ErrUnavailable = errors.New("model server unavailable")
)

// LowQualityError reports an image that failed a quality gate.
type LowQualityError struct {
	Reason string
}

func (e *LowQualityError) Error() string {
	return "low quality image: " + e.Reason
}
