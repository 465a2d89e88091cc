package checkout

import (
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	pkgerrors "github.com/angelmondragon/storefront-checkout/pkg/errors"
)

// CardInput is what the shopper types into the card form, or the nonce a
// hosted card field produced in its place.
type CardInput struct {
	Number     string `json:"number" validate:"omitempty,credit_card"`
	ExpMonth   int    `json:"exp_month" validate:"omitempty,min=1,max=12"`
	ExpYear    int    `json:"exp_year" validate:"omitempty,min=2000,max=2100"`
	CVC        string `json:"cvc" validate:"omitempty,numeric,min=3,max=4"`
	Nonce      string `json:"nonce"`
	Name       string `json:"name" validate:"max=120"`
	Email      string `json:"email" validate:"omitempty,email"`
	PostalCode string `json:"postal_code" validate:"max=16"`
}

// Last4 returns the trailing four digits of the card number, if any.
func (c CardInput) Last4() string {
	digits := strings.ReplaceAll(c.Number, " ", "")
	if len(digits) < 4 {
		return ""
	}
	return digits[len(digits)-4:]
}

var cardValidate = newCardValidator()

func newCardValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" {
			return f.Name
		}
		return tag
	})
	return v
}

// ValidateCard checks the card form. A nonce stands in for the raw card
// fields; without one, number, expiry and cvc are all required and the
// expiry must not be in the past relative to now.
func ValidateCard(in CardInput, now time.Time) error {
	in.Number = strings.ReplaceAll(strings.TrimSpace(in.Number), " ", "")
	details := map[string]string{}

	if err := cardValidate.Struct(in); err != nil {
		errs, ok := err.(validator.ValidationErrors)
		if !ok {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid card details")
		}
		for _, fe := range errs {
			details[fe.Field()] = cardFieldMessage(fe)
		}
	}

	if strings.TrimSpace(in.Nonce) == "" {
		if in.Number == "" {
			details["number"] = "is required"
		}
		if in.ExpMonth == 0 {
			details["exp_month"] = "is required"
		}
		if in.ExpYear == 0 {
			details["exp_year"] = "is required"
		}
		if in.CVC == "" {
			details["cvc"] = "is required"
		}
		if _, bad := details["exp_year"]; !bad && in.ExpYear > 0 && in.ExpMonth >= 1 && in.ExpMonth <= 12 {
			if in.ExpYear < now.Year() || (in.ExpYear == now.Year() && in.ExpMonth < int(now.Month())) {
				details["exp_year"] = "card has expired"
			}
		}
	}

	if len(details) == 0 {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeValidation, "invalid card details").WithDetails(details)
}

func cardFieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "credit_card":
		return "is not a valid card number"
	case "email":
		return "must be a valid email"
	case "numeric":
		return "must contain digits only"
	case "min", "max":
		return "is out of range"
	}
	return "is invalid"
}
