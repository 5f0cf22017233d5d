package normalizer

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/pricefeed/backend/internal/domain"
	"github.com/pricefeed/backend/internal/textutil"
)

// Validator checks assembled products against the canonical schema
type Validator struct {
	validate *validator.Validate
}

// NewValidator creates a validator reporting fields by their JSON names
func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	v.RegisterStructValidation(validateCategory, domain.CanonicalProduct{})
	return &Validator{validate: v}
}

// validateCategory enforces that unmapped products sit in the Other bucket
// and that the slug matches the path
func validateCategory(sl validator.StructLevel) {
	p := sl.Current().Interface().(domain.CanonicalProduct)
	if p.MappingStatus == domain.MappingUnmapped && textutil.PathSlug(p.CategoryPath) != domain.OtherSlug {
		sl.ReportError(p.CategoryPath, "category_path", "CategoryPath", "unmapped_in_other", "")
	}
	if len(p.CategoryPath) > 0 && p.CategorySlug != textutil.PathSlug(p.CategoryPath) {
		sl.ReportError(p.CategorySlug, "category_slug", "CategorySlug", "slug_matches_path", "")
	}
}

// ValidURL reports whether an optional link passes the canonical url rule
func (v *Validator) ValidURL(link string) bool {
	return v.validate.Var(link, "url") == nil
}

// Validate returns nil or an error wrapping domain.ErrValidationFailed
// whose message lists every failing field
func (v *Validator) Validate(p *domain.CanonicalProduct) error {
	if p == nil {
		return fmt.Errorf("%w: product is nil", domain.ErrValidationFailed)
	}
	err := v.validate.Struct(p)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", domain.ErrValidationFailed, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describe(fe))
	}
	return fmt.Errorf("%w: %s", domain.ErrValidationFailed, strings.Join(msgs, "; "))
}

func describe(fe validator.FieldError) string {
	field := fe.Namespace()
	if i := strings.Index(field, "."); i >= 0 {
		field = field[i+1:]
	}
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "unmapped_in_other":
		return field + " must be the Other bucket when mapping_status is unmapped"
	case "slug_matches_path":
		return field + " does not match category_path"
	case "min":
		return fmt.Sprintf("%s must be at least %s long", field, fe.Param())
	}
	if fe.Param() != "" {
		return fmt.Sprintf("%s failed %s=%s (got %v)", field, fe.Tag(), fe.Param(), fe.Value())
	}
	return fmt.Sprintf("%s failed %s (got %v)", field, fe.Tag(), fe.Value())
}
