package service

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gosimple/slug"
	usagedomain "github.com/smallbiznis/zeltra/internal/usage/domain"
	"github.com/smallbiznis/zeltra/pkg/apperror"
)

const maxIdentifierLength = 64

func newValidator() *validator.Validate {
	return validator.New(validator.WithRequiredStructEnabled())
}

var fieldErrors = map[string]error{
	"ServiceType": usagedomain.ErrInvalidServiceType,
	"UsageType":   usagedomain.ErrInvalidUsageType,
	"ResourceID":  usagedomain.ErrInvalidResourceID,
}

// normalizeRecordRequest trims identifiers and folds usage types to snake_case
// ("Compute Hours" becomes "compute_hours").
func normalizeRecordRequest(req usagedomain.RecordUsageRequest) usagedomain.RecordUsageRequest {
	req.ServiceType = strings.TrimSpace(req.ServiceType)
	req.UsageType = normalizeUsageType(req.UsageType)
	if req.ResourceID != nil {
		trimmed := strings.TrimSpace(*req.ResourceID)
		if trimmed == "" {
			req.ResourceID = nil
		} else {
			req.ResourceID = &trimmed
		}
	}
	return req
}

func normalizeUsageType(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	return strings.ReplaceAll(slug.Make(value), "-", "_")
}

// validateRecordRequest checks identifiers with the struct tags. Amounts are
// compared as decimals so tiny negatives cannot round to zero.
func (s *Service) validateRecordRequest(req usagedomain.RecordUsageRequest) error {
	err := s.validate.Struct(req)
	if err == nil {
		switch {
		case req.Quantity.IsNegative():
			return apperror.Validation(usagedomain.ErrInvalidQuantity)
		case req.UnitCost.IsNegative():
			return apperror.Validation(usagedomain.ErrInvalidUnitCost)
		}
		return nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		if sentinel, ok := fieldErrors[verrs[0].StructField()]; ok {
			return apperror.Validation(sentinel)
		}
	}
	return apperror.Validation(err)
}
