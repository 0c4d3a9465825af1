package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"unicode/utf8"

	"campusride/pkg/models"

	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
	validate.RegisterValidation("phone", validatePhone)
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

var (
	ErrEmptyMessage    = errors.New("message cannot be empty")
	ErrMessageTooLong  = fmt.Errorf("message too long (max %d characters)", models.MaxMessageLength)
	ErrInvalidPhone    = errors.New("invalid phone number format")
	phoneSeparators    = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", ".", "")
	acceptedPhoneForms = []*regexp.Regexp{
		regexp.MustCompile(`^01[3-9]\d{8}$`),
		regexp.MustCompile(`^\+?8801[3-9]\d{8}$`),
		regexp.MustCompile(`^\+[1-9]\d{7,14}$`),
	}
)

type FieldError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Message string `json:"message"`
}

type FieldErrors []FieldError

func (v FieldErrors) Error() string {
	var messages []string
	for _, err := range v {
		messages = append(messages, fmt.Sprintf("%s: %s", err.Field, err.Message))
	}
	return strings.Join(messages, "; ")
}

// Struct validates s against its `validate` tags.
func Struct(s interface{}) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := make(FieldErrors, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, FieldError{
			Field:   fe.Field(),
			Tag:     fe.Tag(),
			Message: messageFor(fe),
		})
	}
	return out
}

func messageFor(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email"
	case "min":
		return "must be at least " + fe.Param() + " characters"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "phone":
		return ErrInvalidPhone.Error()
	}
	return "is invalid"
}

// NormalizePhone strips the separators people commonly type.
func NormalizePhone(phone string) string {
	return phoneSeparators.Replace(strings.TrimSpace(phone))
}

// Phone reports whether phone matches one of the accepted formats.
func Phone(phone string) bool {
	n := NormalizePhone(phone)
	if n == "" {
		return false
	}
	for _, re := range acceptedPhoneForms {
		if re.MatchString(n) {
			return true
		}
	}
	return false
}

func validatePhone(fl validator.FieldLevel) bool {
	return Phone(fl.Field().String())
}

// MessageContent trims content and enforces the length bounds in characters.
func MessageContent(content string) (string, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return "", ErrEmptyMessage
	}
	if utf8.RuneCountInString(trimmed) > models.MaxMessageLength {
		return "", ErrMessageTooLong
	}
	return trimmed, nil
}
