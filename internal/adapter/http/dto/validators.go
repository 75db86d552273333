package dto

import (
	"html"
	"net/url"
	"reflect"
	"regexp"
	"strings"

	"reseller-ledger/internal/core/domain"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var safeStringRe = regexp.MustCompile(`^[a-zA-Z0-9_\-\.]+$`)

func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		registerValidators(v)
	}
}

func registerValidators(v *validator.Validate) {
	// Amounts are validated as their decimal string form.
	v.RegisterCustomTypeFunc(decimalValue, decimal.Decimal{})
	_ = v.RegisterValidation("safe_id", validateSafeID)
	_ = v.RegisterValidation("safe_url", validateSafeURL)
	_ = v.RegisterValidation("amount_positive", validateAmount(func(d decimal.Decimal) bool { return d.IsPositive() }))
	_ = v.RegisterValidation("amount_nonnegative", validateAmount(func(d decimal.Decimal) bool { return !d.IsNegative() }))
	_ = v.RegisterValidation("payout_method", validatePayoutMethod)
	_ = v.RegisterValidation("movement_type", validateMovementType)
}

func decimalValue(field reflect.Value) interface{} {
	if d, ok := field.Interface().(decimal.Decimal); ok {
		return d.String()
	}
	return nil
}

// validateSafeID allows alphanumeric, underscore, dash, and dot.
func validateSafeID(fl validator.FieldLevel) bool {
	return safeStringRe.MatchString(fl.Field().String())
}

// validateSafeURL accepts only http/https URLs.
func validateSafeURL(fl validator.FieldLevel) bool {
	raw := fl.Field().String()
	if raw == "" {
		return true
	}
	u, err := url.ParseRequestURI(raw)
	if err != nil {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}

func validateAmount(ok func(decimal.Decimal) bool) validator.Func {
	return func(fl validator.FieldLevel) bool {
		d, err := decimal.NewFromString(fl.Field().String())
		if err != nil {
			return false
		}
		return ok(d)
	}
}

func validatePayoutMethod(fl validator.FieldLevel) bool {
	return domain.PayoutMethod(fl.Field().String()).IsValid()
}

func validateMovementType(fl validator.FieldLevel) bool {
	return domain.MovementType(fl.Field().String()).IsValid()
}

// SanitizeStruct trims whitespace and HTML-escapes every exported string
// field of a struct pointer, descending into nested structs, pointers and slices.
func SanitizeStruct(v interface{}) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Ptr || rv.Elem().Kind() != reflect.Struct {
		return
	}
	sanitizeValue(rv.Elem())
}

func sanitizeValue(rv reflect.Value) {
	switch rv.Kind() {
	case reflect.String:
		if rv.CanSet() {
			rv.SetString(sanitize(rv.String()))
		}
	case reflect.Ptr:
		if !rv.IsNil() {
			sanitizeValue(rv.Elem())
		}
	case reflect.Slice:
		for i := 0; i < rv.Len(); i++ {
			sanitizeValue(rv.Index(i))
		}
	case reflect.Struct:
		t := rv.Type()
		for i := 0; i < rv.NumField(); i++ {
			if !t.Field(i).IsExported() {
				continue
			}
			sanitizeValue(rv.Field(i))
		}
	}
}

func sanitize(s string) string {
	return html.EscapeString(strings.TrimSpace(s))
}
