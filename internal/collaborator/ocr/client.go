// Package ocr calls the identity-document OCR service.
package ocr

import (
	"context"

	"creditengine/internal/collaborator"
)

// Extraction is what the OCR service read from an identity document image.
type Extraction struct {
	IDNumber   string
	Confidence float64
}

type cinResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    *struct {
		CINNumber  string  `json:"cin_number"`
		Confidence float64 `json:"confidence"`
	} `json:"data"`
}

type Client struct {
	http *collaborator.Client
}

func New(http *collaborator.Client) *Client {
	return &Client{http: http}
}

// ExtractIdentity uploads the image to POST /ocr/cin with enhancement enabled.
func (c *Client) ExtractIdentity(ctx context.Context, image []byte) (Extraction, error) {
	body, err := c.http.PostMultipart(ctx, "extract_identity", "/ocr/cin?enhance=true", nil,
		collaborator.Part{Field: "file", Filename: "identity.jpg", Content: image},
	)
	if err != nil {
		return Extraction{}, err
	}
	resp, err := collaborator.Decode[cinResponse](c.http, body)
	if err != nil {
		return Extraction{}, err
	}
	if !resp.Success {
		return Extraction{}, collaborator.NewError(collaborator.ErrorBadData, c.http.Name(), "extraction failed: "+resp.Message, nil)
	}
	if resp.Data == nil {
		return Extraction{}, collaborator.NewError(collaborator.ErrorContractMismatch, c.http.Name(), "response has no data", nil)
	}
	return Extraction{IDNumber: resp.Data.CINNumber, Confidence: resp.Data.Confidence}, nil
}

// IsAvailable reports whether GET /health answers 2xx.
func (c *Client) IsAvailable(ctx context.Context) bool {
	_, err := c.http.Get(ctx, "health", "/health", nil)
	return err == nil
}
