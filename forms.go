package accounts

import (
	"errors"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/goliatone/go-router"
	"github.com/nyaruka/phonenumbers"
)

// GlobalErrorKey collects form-wide messages that belong to no single field
const GlobalErrorKey = "__all__"

// Validatable is any payload that can run its own validation rules
type Validatable interface {
	Validate() error
}

// Form wraps a payload with its binding and validation state so handlers can
// respond with per-field messages.
type Form[T Validatable] struct {
	Payload T
	errors  map[string][]string
}

func NewForm[T Validatable](payload T) *Form[T] {
	return &Form[T]{
		Payload: payload,
		errors:  map[string][]string{},
	}
}

// Bind parses the request body into the payload
func (f *Form[T]) Bind(c router.Context) error {
	if err := c.Bind(f.Payload); err != nil {
		f.AddErrorMessage("failed to parse form")
		return err
	}
	return nil
}

// IsValid runs the payload rules and captures per-field messages
func (f *Form[T]) IsValid() bool {
	err := f.Payload.Validate()
	if err == nil {
		return len(f.errors) == 0
	}

	for field, messages := range FormatValidationErrorToMap(err) {
		f.errors[field] = append(f.errors[field], messages...)
	}

	return false
}

// AddErrorMessage records a message that is not tied to a field
func (f *Form[T]) AddErrorMessage(message string) {
	f.errors[GlobalErrorKey] = append(f.errors[GlobalErrorKey], message)
}

// AddFieldError records a message against a single field
func (f *Form[T]) AddFieldError(field, message string) {
	f.errors[field] = append(f.errors[field], message)
}

func (f *Form[T]) HasErrors() bool {
	return len(f.errors) > 0
}

// Errors returns the accumulated messages keyed by field
func (f *Form[T]) Errors() map[string][]string {
	return f.errors
}

// JSON is the serializable failure shape for API clients
func (f *Form[T]) JSON() map[string]any {
	return map[string]any{
		"success": false,
		"errors":  f.errors,
	}
}

// FormatValidationErrorToMap flattens ozzo validation errors into per-field
// message lists. Anything that is not a field error lands on GlobalErrorKey.
func FormatValidationErrorToMap(err error) map[string][]string {
	out := map[string][]string{}
	if err == nil {
		return out
	}

	var verr validation.Errors
	if !errors.As(err, &verr) {
		out[GlobalErrorKey] = append(out[GlobalErrorKey], err.Error())
		return out
	}

	for field, ferr := range verr {
		var nested validation.Errors
		if errors.As(ferr, &nested) {
			for _, msgs := range FormatValidationErrorToMap(nested) {
				out[field] = append(out[field], msgs...)
			}
			continue
		}
		out[field] = append(out[field], ferr.Error())
	}

	return out
}

// LoginPayload carries the credential fields
type LoginPayload struct {
	Identifier string `form:"identifier" json:"identifier"`
	Password   string `form:"password" json:"password"`
	RememberMe bool   `form:"remember_me" json:"remember_me"`
}

func (r *LoginPayload) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(
			&r.Identifier,
			validation.Required,
		),
		validation.Field(
			&r.Password,
			validation.Required,
		),
	)
}

// CreateUserPayload is the signup form payload
type CreateUserPayload struct {
	Username        string `form:"username" json:"username"`
	FirstName       string `form:"first_name" json:"first_name"`
	LastName        string `form:"last_name" json:"last_name"`
	Email           string `form:"email" json:"email"`
	Phone           string `form:"phone_number" json:"phone_number"`
	Password        string `form:"password" json:"password"`
	ConfirmPassword string `form:"confirm_password" json:"confirm_password"`
}

func (r *CreateUserPayload) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Username, validation.Length(3, 64)),
		validation.Field(&r.FirstName, validation.Length(1, 200)),
		validation.Field(&r.LastName, validation.Length(1, 200)),
		validation.Field(&r.Email, validation.Required, validation.Length(6, 100), is.Email),
		validation.Field(&r.Phone, validation.By(ValidatePhoneNumber("US"))),
		validation.Field(&r.Password, validation.Required, validation.Length(10, 100)),
		validation.Field(
			&r.ConfirmPassword,
			validation.Required,
			validation.Length(10, 100),
			validation.By(ValidateStringEquals(r.Password)),
		),
	)
}

// ForgotPasswordPayload starts password recovery
type ForgotPasswordPayload struct {
	Email string `form:"email" json:"email"`
}

func (r *ForgotPasswordPayload) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(
			&r.Email,
			validation.Required,
			is.Email,
		),
	)
}

// ChangePasswordPayload rotates the password of a logged in user
type ChangePasswordPayload struct {
	OldPassword     string `form:"old_password" json:"old_password"`
	Password        string `form:"password" json:"password"`
	ConfirmPassword string `form:"password_repeat" json:"password_repeat"`
}

func (r *ChangePasswordPayload) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.OldPassword, validation.Required),
		validation.Field(&r.Password, validation.Required, validation.Length(10, 100)),
		validation.Field(
			&r.ConfirmPassword,
			validation.Required,
			validation.By(ValidateStringEquals(r.Password)),
		),
	)
}

// PasswordPayload sets a new password from a reset link
type PasswordPayload struct {
	Password        string `form:"password" json:"password"`
	ConfirmPassword string `form:"password_repeat" json:"password_repeat"`
}

func (r *PasswordPayload) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Password, validation.Required, validation.Length(10, 100)),
		validation.Field(
			&r.ConfirmPassword,
			validation.Required,
			validation.By(ValidateStringEquals(r.Password)),
		),
	)
}

// ValidateStringEquals will check that both values match
func ValidateStringEquals(str string) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if s != str {
			return errors.New("values must match")
		}
		return nil
	}
}

// ValidatePhoneNumber parses the value as a phone number for the region.
// Empty values pass; pair with validation.Required to make the field
// mandatory.
func ValidatePhoneNumber(region string) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if s == "" {
			return nil
		}

		num, err := phonenumbers.Parse(s, region)
		if err != nil {
			return errors.New("must be a valid phone number")
		}

		if !phonenumbers.IsValidNumber(num) {
			return errors.New("must be a valid phone number")
		}

		return nil
	}
}
