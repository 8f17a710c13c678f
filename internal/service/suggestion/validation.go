package suggestion

import (
	"errors"

	"redline/internal/config"
	models "redline/internal/domain/models/suggestion"
	suggestionSvc "redline/internal/domain/services/suggestion"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// validateCreateBatchRequest checks the request envelope. Item fields are
// checked one by one so a bad item only drops itself.
func (s *suggestionService) validateCreateBatchRequest(req *suggestionSvc.CreateBatchRequest) error {
	return validation.ValidateStruct(req,
		validation.Field(&req.TenantID, validation.Required),
		validation.Field(&req.DocumentID, validation.Required),
		validation.Field(&req.Suggestions,
			validation.Required.Error("at least one suggestion is required"),
			validation.Length(1, s.cfg.Creation.BatchSize),
		),
	)
}

func validateCandidate(c *models.Candidate) error {
	return validation.ValidateStruct(c,
		validation.Field(&c.TextToReplace,
			validation.Required,
			validation.Length(1, config.MaxAnchorTextLength),
		),
		validation.Field(&c.ReplaceWith, validation.Length(0, config.MaxReplacementLength)),
		validation.Field(&c.Reason, validation.Length(0, config.MaxReasonLength)),
		validation.Field(&c.Priority, validation.Required, validation.By(func(value interface{}) error {
			if p, _ := value.(models.Priority); !p.Valid() {
				return errors.New("unknown priority")
			}
			return nil
		})),
		validation.Field(&c.Type, validation.Required, validation.By(func(value interface{}) error {
			if t, _ := value.(models.Type); !t.Valid() {
				return errors.New("unknown suggestion type")
			}
			return nil
		})),
	)
}

func validateResolveRequest(req *suggestionSvc.ResolveRequest) error {
	return validation.ValidateStruct(req,
		validation.Field(&req.TenantID, validation.Required),
		validation.Field(&req.DocumentID, validation.Required),
	)
}

func validateRevalidateRequest(req *suggestionSvc.RevalidateRequest) error {
	return validation.ValidateStruct(req,
		validation.Field(&req.TenantID, validation.Required),
		validation.Field(&req.DocumentID, validation.Required),
		validation.Field(&req.NewBody, validation.Length(0, config.MaxDocumentBodyLength)),
	)
}

func validateUpdateStatusRequest(req *suggestionSvc.UpdateStatusRequest) error {
	return validation.ValidateStruct(req,
		validation.Field(&req.TenantID, validation.Required),
		validation.Field(&req.DocumentID, validation.Required),
		validation.Field(&req.SuggestionID, validation.Required),
		validation.Field(&req.Status, validation.Required, validation.By(func(value interface{}) error {
			st, _ := value.(models.Status)
			if !st.Valid() {
				return errors.New("unknown status")
			}
			if st == models.StatusPending {
				return errors.New("suggestions cannot return to pending")
			}
			if !st.UserSettable() {
				return errors.New("status is set by revalidation only")
			}
			return nil
		})),
	)
}
