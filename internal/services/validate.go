package services

import (
	"context"
	"errors"
	"regexp"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/tbourn/go-storefront-backend/internal/domain"
	"github.com/tbourn/go-storefront-backend/internal/repo"
)

var hundred = decimal.NewFromInt(100)

// invalid converts an ozzo validation error into ErrBadRequest, keeping
// the per-field messages.
func invalid(prefix string, err error) error {
	if err == nil {
		return nil
	}
	var ve validation.Errors
	if errors.As(err, &ve) {
		return badRequest("%s: %s", prefix, strings.TrimSuffix(ve.Error(), "."))
	}
	return badRequest("%s: %v", prefix, err)
}

// positive rejects zero and negative decimals.
func positive(v any) error {
	d, _ := v.(decimal.Decimal)
	if !d.IsPositive() {
		return errors.New("must be greater than zero")
	}
	return nil
}

// nonNegative rejects negative decimals.
func nonNegative(v any) error {
	d, _ := v.(decimal.Decimal)
	if d.IsNegative() {
		return errors.New("must not be negative")
	}
	return nil
}

func validateDiscount(d domain.Discount) error {
	err := validation.ValidateStruct(&d,
		validation.Field(&d.Type,
			validation.Required,
			validation.In(domain.DiscountPercentage, domain.DiscountFixedAmount),
		),
		validation.Field(&d.Value,
			validation.By(positive),
			validation.When(d.Type == domain.DiscountPercentage, validation.By(func(any) error {
				if d.Value.GreaterThan(hundred) {
					return errors.New("percentage cannot exceed 100")
				}
				return nil
			})),
		),
	)
	return invalid("discount", err)
}

// checkWindowUpdate validates the window an update leaves behind when only
// one bound is patched: the patched bound merged over the stored one.
func checkWindowUpdate[T any](ctx context.Context, db *gorm.DB, id string, fields []string, patch domain.Window, window func(*T) domain.Window) error {
	setStart, setEnd := contains(fields, "starts_at"), contains(fields, "ends_at")
	if id == "" || setStart == setEnd {
		return nil
	}
	stored, err := repo.Get[T](ctx, db, id, []string{"id", "starts_at", "ends_at"})
	if err != nil {
		return err
	}
	w := window(stored)
	if setStart {
		w.StartsAt = patch.StartsAt
	} else {
		w.EndsAt = patch.EndsAt
	}
	return validateWindow(w)
}

func validateWindow(w domain.Window) error {
	if w.StartsAt == nil || w.EndsAt == nil {
		return nil
	}
	if !w.EndsAt.After(*w.StartsAt) {
		return badRequest("ends_at must be after starts_at")
	}
	return nil
}

// validateName checks the name field on create, and on update when named.
func validateName(name string, fields []string) error {
	if !wants(fields, "name") {
		return nil
	}
	return invalid("name", validation.Validate(strings.TrimSpace(name),
		validation.Required,
		validation.RuneLength(1, 255),
	))
}

var couponCodeRE = regexp.MustCompile(`^[A-Z0-9][A-Z0-9_-]*$`)

var emailRE = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

func validateEmail(email string, fields []string) error {
	if !wants(fields, "email") || email == "" {
		return nil
	}
	return invalid("email", validation.Validate(email, validation.Match(emailRE)))
}
