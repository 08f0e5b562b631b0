// -----------------------------------------------------------------------
// Request Validation - Boundary checks for batch submissions
// -----------------------------------------------------------------------

package models

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// validate is shared across requests; validator instances cache struct
// metadata and are safe for concurrent use.
var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateRequest checks a submission request against its field tags.
// An explicitly empty item list passes: "required" rejects a missing list
// but admits an empty one, which the processor reports as a soft error
// inside the job result rather than a rejected submission.
func ValidateRequest(req interface{}) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}

	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return fmt.Errorf("invalid request: %w", err)
	}

	details := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		details = append(details, describeFieldError(fe))
	}
	return fmt.Errorf("invalid request: %s", strings.Join(details, "; "))
}

// describeFieldError renders one field failure in request terms
func describeFieldError(fe validator.FieldError) string {
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("field %q is required", field)
	case "gte":
		return fmt.Sprintf("field %q must be at least %s", field, fe.Param())
	case "lte":
		return fmt.Sprintf("field %q must be at most %s", field, fe.Param())
	default:
		return fmt.Sprintf("field %q failed %q validation", field, fe.Tag())
	}
}
