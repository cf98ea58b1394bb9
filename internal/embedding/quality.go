package embedding

import "fmt"

// QualityPolicy holds the gates an uploaded face photo must pass before its
// embedding is stored or compared.
type QualityPolicy struct {
	MaxImageSize    int     // longest image edge before downscaling
	MinImageEdge    int     // reject uploads smaller than this on either edge
	MinFaceWidthPx  float64 // minimum face width in prepared-image pixels
	MinFaceWidthRel float64 // minimum face width relative to prepared-image width
	MinDetScore     float64 // minimum detector confidence for the primary face
	AmbiguityRatio  float64 // secondary face area ratio above which the subject is ambiguous
}

func bboxWidth(bbox []float64) float64 {
	if len(bbox) != 4 {
		return 0
	}
	return bbox[2] - bbox[0]
}

func bboxArea(bbox []float64) float64 {
	if len(bbox) != 4 {
		return 0
	}
	w := bbox[2] - bbox[0]
	h := bbox[3] - bbox[1]
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// selectPrimary picks the dominant face of an image and applies the quality
// gates. The primary face is the one with the largest bounding box. When
// another face covers at least AmbiguityRatio of the primary's area the
// subject of the photo is ambiguous and the caller must not guess.
func selectPrimary(faces []Face, imageWidth int, policy QualityPolicy) (*Face, error) {
	if len(faces) == 0 {
		return nil, ErrNoFaceDetected
	}

	primary := &faces[0]
	primaryArea := bboxArea(primary.BBox)
	for i := 1; i < len(faces); i++ {
		if area := bboxArea(faces[i].BBox); area > primaryArea {
			primary = &faces[i]
			primaryArea = area
		}
	}

	if policy.AmbiguityRatio > 0 && primaryArea > 0 {
		for i := range faces {
			if &faces[i] == primary {
				continue
			}
			if bboxArea(faces[i].BBox) >= policy.AmbiguityRatio*primaryArea {
				return nil, fmt.Errorf("%w: %d faces of comparable size", ErrAmbiguousFaces, len(faces))
			}
		}
	}

	width := bboxWidth(primary.BBox)
	if policy.MinFaceWidthPx > 0 && width < policy.MinFaceWidthPx {
		return nil, &LowQualityError{
			Reason: fmt.Sprintf("face is %.0fpx wide, minimum is %.0fpx", width, policy.MinFaceWidthPx),
		}
	}

	if policy.MinFaceWidthRel > 0 && imageWidth > 0 {
		rel := width / float64(imageWidth)
		if rel < policy.MinFaceWidthRel {
			return nil, &LowQualityError{
				Reason: fmt.Sprintf("face covers %.1f%% of image width, minimum is %.1f%%",
					rel*100, policy.MinFaceWidthRel*100),
			}
		}
	}

	if policy.MinDetScore > 0 && primary.DetScore < policy.MinDetScore {
		return nil, &LowQualityError{
			Reason: fmt.Sprintf("detection confidence %.2f is below %.2f", primary.DetScore, policy.MinDetScore),
		}
	}

	return primary, nil
}
