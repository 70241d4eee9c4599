package receipts

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/eventrentph/eventrent-backend/pkg/config"
	"github.com/eventrentph/eventrent-backend/pkg/enums"
)

// Extraction is the raw OCR output for one receipt image.
type Extraction struct {
	Text       string
	Confidence enums.OcrConfidence
}

// Extractor turns a receipt image into text. An error means the OCR backend
// was unreachable or rejected the request; the pipeline degrades to manual
// review instead of failing the upload.
type Extractor interface {
	ExtractText(ctx context.Context, image []byte) (Extraction, error)
}

type httpExtractor struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewHTTPExtractor builds an Extractor against the configured OCR endpoint.
func NewHTTPExtractor(cfg config.OcrConfig) (Extractor, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("ocr endpoint required")
	}
	return &httpExtractor{
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		client:   &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type ocrRequest struct {
	ImageBase64 string `json:"imageBase64"`
}

type ocrResponse struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

func (e *httpExtractor) ExtractText(ctx context.Context, image []byte) (Extraction, error) {
	body, err := json.Marshal(ocrRequest{
		ImageBase64: base64.StdEncoding.EncodeToString(image),
	})
	if err != nil {
		return Extraction{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(body))
	if err != nil {
		return Extraction{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return Extraction{}, fmt.Errorf("calling ocr backend: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Extraction{}, fmt.Errorf("ocr backend returned %d: %s", resp.StatusCode, snippet)
	}

	var decoded ocrResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return Extraction{}, fmt.Errorf("decoding ocr response: %w", err)
	}

	return Extraction{
		Text:       decoded.Text,
		Confidence: confidenceBand(decoded.Confidence),
	}, nil
}

func confidenceBand(score float64) enums.OcrConfidence {
	switch {
	case score >= 0.85:
		return enums.OcrConfidenceHigh
	case score >= 0.60:
		return enums.OcrConfidenceMedium
	default:
		return enums.OcrConfidenceLow
	}
}
