package handler

import (
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"creditengine/internal/application/models"
	"creditengine/internal/application/service"
	"creditengine/internal/scoring"
	id "creditengine/pkg/domain"
	dErrors "creditengine/pkg/domain-errors"
)

const (
	maxUploadBytes   = 32 << 20
	maxDocumentBytes = 10 << 20
	maxClaimedIDLen  = 32
)

// CreateApplicationRequest is the body of POST /applications: the applicant
// profile the risk model predicts from.
type CreateApplicationRequest struct {
	models.ApplicantFeatures
}

// Validate normalizes and validates the profile.
// Implements httputil.Validatable.
func (r *CreateApplicationRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.Normalize()
	return r.ApplicantFeatures.Validate()
}

// documentFields maps multipart field names to document categories.
var documentFields = map[string]scoring.Category{
	"identity": scoring.CategoryIdentity,
	"income":   scoring.CategoryIncome,
	"tax":      scoring.CategoryTax,
	"bank":     scoring.CategoryBank,
}

// parseEvaluateForm reads the multipart evaluation upload. The identity
// document is both checked against claimed_id and scored as an IDENTITY
// document.
func parseEvaluateForm(w http.ResponseWriter, r *http.Request) (service.EvaluateRequest, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return service.EvaluateRequest{}, dErrors.New(dErrors.CodeBadRequest, "invalid multipart form")
	}

	claimed := strings.TrimSpace(r.FormValue("claimed_id"))
	if claimed == "" {
		return service.EvaluateRequest{}, dErrors.New(dErrors.CodeValidation, "claimed_id is required")
	}
	if len(claimed) > maxClaimedIDLen {
		return service.EvaluateRequest{}, dErrors.New(dErrors.CodeValidation, "claimed_id is too long")
	}

	idFiles := r.MultipartForm.File["identity_document"]
	if len(idFiles) != 1 {
		return service.EvaluateRequest{}, dErrors.New(dErrors.CodeValidation, "exactly one identity_document is required")
	}
	image, err := readPart(idFiles[0])
	if err != nil {
		return service.EvaluateRequest{}, err
	}

	req := service.EvaluateRequest{
		ClaimedID:     claimed,
		IdentityImage: image,
		Documents: []scoring.Document{{
			ID:       id.NewDocumentID(),
			Category: scoring.CategoryIdentity,
			Content:  image,
		}},
	}
	for _, field := range []string{"identity", "income", "tax", "bank"} {
		for _, fh := range r.MultipartForm.File[field] {
			content, err := readPart(fh)
			if err != nil {
				return service.EvaluateRequest{}, err
			}
			req.Documents = append(req.Documents, scoring.Document{
				ID:       id.NewDocumentID(),
				Category: documentFields[field],
				Content:  content,
			})
		}
	}
	return req, nil
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	if fh.Size == 0 {
		return nil, dErrors.Newf(dErrors.CodeValidation, "%s is empty", fh.Filename)
	}
	if fh.Size > maxDocumentBytes {
		return nil, dErrors.Newf(dErrors.CodeValidation, "%s exceeds the 10MB document limit", fh.Filename)
	}
	f, err := fh.Open()
	if err != nil {
		return nil, dErrors.New(dErrors.CodeBadRequest, "unreadable upload")
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeBadRequest, "unreadable upload")
	}
	return content, nil
}
