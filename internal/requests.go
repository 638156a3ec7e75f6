package internal

import (
	"encoding/json"
	"reflect"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	enTranslations "github.com/go-playground/validator/v10/translations/en"
	"github.com/pkg/errors"
)

type SubscribeRequest struct {
	Email string `json:"email" validate:"required,email,max=250"`
	Lang  string `json:"lang" validate:"omitempty,max=10"`
}

type UnsubscribeRequest struct {
	Email   string `json:"email" validate:"required,email,max=250"`
	FromAll bool   `json:"fromAll"`
}

// ValidationError maps the json name of every invalid field to a message.
type ValidationError map[string]string

func (e ValidationError) Error() string {
	if len(e) == 0 {
		return "validation error"
	}

	data, err := json.Marshal(e)
	if err != nil {
		return "validation error"
	}

	return string(data)
}

type Validator struct {
	validate   *validator.Validate
	translator ut.Translator
}

func NewValidator() (*Validator, error) {
	validate := validator.New(validator.WithRequiredStructEnabled())

	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}

		return name
	})

	english := en.New()
	translator, ok := ut.New(english, english).GetTranslator("en")
	if !ok {
		return nil, errors.New("missing english translator")
	}

	if err := enTranslations.RegisterDefaultTranslations(validate, translator); err != nil {
		return nil, err
	}

	return &Validator{
		validate:   validate,
		translator: translator,
	}, nil
}

// Validate returns a ValidationError when data breaks one of its rules.
func (v *Validator) Validate(data interface{}) error {
	err := v.validate.Struct(data)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	result := ValidationError{}
	for _, fe := range fieldErrs {
		result[fe.Field()] = fe.Translate(v.translator)
	}

	return result
}
