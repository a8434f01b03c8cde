// Package validation checks user input and reports failures in Arabic.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/locales/ar"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/dtroode/membership-server/internal/model"
)

var (
	// custom validation tags & texts
	requiredTag  = "required"
	requiredText = "المرجو ملء الخانات الضرورية"

	cnieTag   = "cnie"
	cnieText  = "رقم البطاقة الوطنية يجب أن يحتوي على حروف وأرقام فقط"
	cnieRegex = regexp.MustCompile(`^[A-Za-z0-9]+$`)

	phoneTag   = "phone10"
	phoneText  = "رقم الهاتف يجب أن يتكون من 10 أرقام بالضبط"
	phoneRegex = regexp.MustCompile(`^\d{10}$`)

	emailTag   = "email_shape"
	emailText  = "يرجى إدخال بريد إلكتروني صحيح"
	emailRegex = regexp.MustCompile(`^[^\s\v\p{Z}\x{FEFF}@]+@[^\s\v\p{Z}\x{FEFF}@]+\.[^\s\v\p{Z}\x{FEFF}@]+$`)

	regionTag  = "region"
	regionText = "يرجى اختيار جهة من القائمة"
)

// Validator validates structs tagged with `validate` and translates the failures.
type Validator struct {
	validate   *validator.Validate
	translator ut.Translator
}

// New creates a Validator with the registration tags and Arabic messages registered.
func New() (*Validator, error) {
	validate := validator.New(validator.WithRequiredStructEnabled())

	locale := ar.New()
	uni := ut.New(locale, locale)
	translator, found := uni.GetTranslator(locale.Locale())
	if !found {
		return nil, fmt.Errorf("translator for %q not found", locale.Locale())
	}

	// Use JSON tag names for errors instead of Go struct names.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	custom := map[string]validator.Func{
		cnieTag:   matches(cnieRegex),
		phoneTag:  matches(phoneRegex),
		emailTag:  matches(emailRegex),
		regionTag: func(fl validator.FieldLevel) bool { return model.IsRegion(fl.Field().String()) },
	}
	for tag, fn := range custom {
		if err := validate.RegisterValidation(tag, fn); err != nil {
			return nil, fmt.Errorf("failed to register %s validation: %w", tag, err)
		}
	}

	texts := map[string]string{
		requiredTag: requiredText,
		cnieTag:     cnieText,
		phoneTag:    phoneText,
		emailTag:    emailText,
		regionTag:   regionText,
	}
	for tag, text := range texts {
		if err := registerTranslation(validate, translator, tag, text); err != nil {
			return nil, fmt.Errorf("failed to register %s translation: %w", tag, err)
		}
	}

	return &Validator{validate: validate, translator: translator}, nil
}

// Struct validates s. Field failures are returned as *model.ValidationError
// in struct field order; any other error is returned unchanged.
func (v *Validator) Struct(s any) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	fields := make([]model.FieldError, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		fields = append(fields, model.FieldError{
			Field:   fe.Field(),
			Message: fe.Translate(v.translator),
		})
	}
	return model.NewValidationError(fields...)
}

func registerTranslation(validate *validator.Validate, translator ut.Translator, tag, text string) error {
	return validate.RegisterTranslation(
		tag, translator,
		func(t ut.Translator) error { return t.Add(tag, text, true) },
		func(t ut.Translator, fe validator.FieldError) string {
			s, err := t.T(tag, fe.Field())
			if err != nil {
				return text
			}
			return s
		},
	)
}

func matches(re *regexp.Regexp) validator.Func {
	return func(fl validator.FieldLevel) bool {
		return re.MatchString(fl.Field().String())
	}
}
