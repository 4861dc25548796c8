package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/reservoirai/reservoir/internal/extract"
)

// OCRService calls an external OCR endpoint that accepts a base64 document
// payload and returns text, page structure, and embedded images.
type OCRService struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewOCRService(baseURL, apiKey string) *OCRService {
	return &OCRService{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
}

var _ extract.OCRProvider = (*OCRService)(nil)

type ocrRequest struct {
	Document string `json:"document"` // base64
}

type ocrResponse struct {
	Text  string `json:"text"`
	Pages []struct {
		PageNumber int    `json:"page_number"`
		Text       string `json:"text"`
	} `json:"pages"`
	Images []struct {
		Data    string `json:"data"` // base64
		Caption string `json:"caption"`
	} `json:"images"`
}

func (s *OCRService) Process(ctx context.Context, data []byte) (*extract.OCRResult, error) {
	reqBody, err := json.Marshal(ocrRequest{
		Document: base64.StdEncoding.EncodeToString(data),
	})
	if err != nil {
		return nil, fmt.Errorf("ocr: failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/process", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("ocr: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ocr: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("ocr: failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ocr: API error (status %d): %s", resp.StatusCode, string(body))
	}

	var parsed ocrResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("ocr: failed to unmarshal response: %w", err)
	}

	result := &extract.OCRResult{Text: parsed.Text}
	for _, p := range parsed.Pages {
		result.Pages = append(result.Pages, extract.PageText{
			PageNumber: p.PageNumber,
			Text:       p.Text,
		})
	}
	for _, img := range parsed.Images {
		payload, err := base64.StdEncoding.DecodeString(img.Data)
		if err != nil || len(payload) == 0 {
			continue
		}
		result.Images = append(result.Images, extract.ImageCandidate{
			Data:    payload,
			Caption: img.Caption,
		})
	}
	return result, nil
}
