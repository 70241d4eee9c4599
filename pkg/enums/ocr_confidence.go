package enums

import "fmt"

// OcrConfidence is the categorical signal quality of an OCR extraction.
type OcrConfidence string

const (
	OcrConfidenceLow    OcrConfidence = "low"
	OcrConfidenceMedium OcrConfidence = "medium"
	OcrConfidenceHigh   OcrConfidence = "high"
)

var validOcrConfidences = []OcrConfidence{
	OcrConfidenceLow,
	OcrConfidenceMedium,
	OcrConfidenceHigh,
}

// String implements fmt.Stringer.
func (c OcrConfidence) String() string {
	return string(c)
}

// IsValid reports whether the value is a known OcrConfidence.
func (c OcrConfidence) IsValid() bool {
	for _, candidate := range validOcrConfidences {
		if candidate == c {
			return true
		}
	}
	return false
}

// ParseOcrConfidence converts raw input into an OcrConfidence.
func ParseOcrConfidence(value string) (OcrConfidence, error) {
	for _, candidate := range validOcrConfidences {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid ocr confidence %q", value)
}
