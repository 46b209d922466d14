package quote

import (
	"errors"
	"fmt"
	"math"

	"github.com/go-playground/validator/v10"

	"github.com/Simplici0/taller/internal/sizes"
)

// ErrInvalid wraps every validation failure of a quote record.
var ErrInvalid = errors.New("invalid quote record")

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("finite", func(fl validator.FieldLevel) bool {
		f := fl.Field().Float()
		return !math.IsNaN(f) && !math.IsInf(f, 0)
	})
	_ = v.RegisterValidation("size_label", func(fl validator.FieldLevel) bool {
		return sizes.Known(fl.Field().String())
	})
	return v
}

// Validator exposes the shared validator so request DTOs can use the same custom tags.
func Validator() *validator.Validate {
	return validate
}

// Validate checks that every number is finite and non-negative and every size label is on the ladder.
func (l LineItem) Validate() error {
	if err := validate.Struct(l); err != nil {
		return fmt.Errorf("%w: line item %q: %v", ErrInvalid, l.Name, err)
	}
	return nil
}

// Validate checks the project and its line items. Batch quotes need a quantity on every line.
func (p Project) Validate() error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("%w: project: %v", ErrInvalid, err)
	}
	if p.Mode == ModeBatch {
		for i, item := range p.LineItems {
			if item.Quantity < 1 {
				return fmt.Errorf("%w: line item %d: batch quantity must be at least 1", ErrInvalid, i)
			}
		}
	}
	return nil
}

// Validate checks the fitting.
func (f Fitting) Validate() error {
	if err := validate.Struct(f); err != nil {
		return fmt.Errorf("%w: fitting: %v", ErrInvalid, err)
	}
	return nil
}

// Validate checks the company profile.
func (c Company) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: company: %v", ErrInvalid, err)
	}
	return nil
}

// ValidTaxPercent reports whether pct can be used as a tax rate.
func ValidTaxPercent(pct float64) bool {
	return !math.IsNaN(pct) && pct >= 0 && pct <= 100
}
