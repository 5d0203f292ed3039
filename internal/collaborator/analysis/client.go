// Package analysis calls the document-analysis service, which scores the
// quality and trustworthiness of a single uploaded document.
package analysis

import (
	"context"

	"creditengine/internal/collaborator"
)

// DocumentType is the collaborator's name for a document category.
type DocumentType string

const (
	DocumentTypeCIN            DocumentType = "CIN"
	DocumentTypePaySlip        DocumentType = "PAY_SLIP"
	DocumentTypeTaxDeclaration DocumentType = "TAX_DECLARATION"
	DocumentTypeBankStatement  DocumentType = "BANK_STATEMENT"
)

type analyzeResponse struct {
	Score *float64 `json:"score"`
	Error string   `json:"error,omitempty"`
}

type Client struct {
	http *collaborator.Client
}

func New(http *collaborator.Client) *Client {
	return &Client{http: http}
}

// Analyze posts the document to POST /analyze/document and returns its raw score.
// The score is returned as reported; range enforcement belongs to the caller.
func (c *Client) Analyze(ctx context.Context, content []byte, docType DocumentType) (float64, error) {
	body, err := c.http.PostMultipart(ctx, "analyze_document", "/analyze/document",
		map[string]string{"document_type": string(docType)},
		collaborator.Part{Field: "file", Filename: filename(docType), Content: content},
	)
	if err != nil {
		return 0, err
	}
	resp, err := collaborator.Decode[analyzeResponse](c.http, body)
	if err != nil {
		return 0, err
	}
	if resp.Error != "" {
		return 0, collaborator.NewError(collaborator.ErrorBadData, c.http.Name(), "analysis failed: "+resp.Error, nil)
	}
	if resp.Score == nil {
		return 0, collaborator.NewError(collaborator.ErrorContractMismatch, c.http.Name(), "response has no score", nil)
	}
	return *resp.Score, nil
}

func filename(docType DocumentType) string {
	if docType == DocumentTypeCIN {
		return "identity.jpg"
	}
	return "document.pdf"
}
