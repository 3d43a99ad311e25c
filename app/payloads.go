package app

import (
	"errors"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"

	auth "github.com/goliatone/go-auth-gate"
)

// RegisterPayload is the body of the user registration endpoint
type RegisterPayload struct {
	UserName        string `json:"user_name"`
	Email           string `json:"email"`
	FullName        string `json:"full_name"`
	Age             int    `json:"age"`
	Gender          string `json:"gender"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

// Validate will validate the payload
func (r RegisterPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.UserName, validation.Required, validation.Length(3, 100), is.Alphanumeric),
		validation.Field(&r.Email, validation.Length(6, 100), is.Email),
		validation.Field(&r.FullName, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.Age, validation.Min(0), validation.Max(150)),
		validation.Field(&r.Gender, validation.In(auth.GenderUnknown, auth.GenderMale, auth.GenderFemale)),
		validation.Field(&r.Password, validation.Required, validation.Length(10, 100)),
		validation.Field(
			&r.ConfirmPassword,
			validation.Required,
			validation.By(ValidateStringEquals(r.Password)),
		),
	)
}

// User builds the record to store. The password is hashed by the
// authenticator.
func (r RegisterPayload) User() *auth.User {
	gender := r.Gender
	if gender == "" {
		gender = auth.GenderUnknown
	}
	return &auth.User{
		UserName: r.UserName,
		Email:    r.Email,
		FullName: r.FullName,
		Age:      r.Age,
		Gender:   gender,
	}
}

// SignInPayload is the body of the token endpoint
type SignInPayload struct {
	UserName string `json:"user_name"`
	Password string `json:"password"`
}

// Validate will validate the payload
func (r SignInPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.UserName, validation.Required),
		validation.Field(&r.Password, validation.Required),
	)
}

// ChangePasswordPayload is the body of the password change endpoint
type ChangePasswordPayload struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
	ConfirmPassword string `json:"confirm_password"`
}

// Validate will validate the payload
func (r ChangePasswordPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.CurrentPassword, validation.Required),
		validation.Field(&r.NewPassword, validation.Required, validation.Length(10, 100)),
		validation.Field(
			&r.ConfirmPassword,
			validation.Required,
			validation.By(ValidateStringEquals(r.NewPassword)),
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

type validatable interface {
	Validate() error
}

// bindPayload decodes the request body into payload and validates it
func bindPayload[T validatable](c *fiber.Ctx, payload T) error {
	if err := c.BodyParser(payload); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryBadInput, "The request body could not be parsed.").
			WithTextCode("PAYLOAD_INVALID")
	}
	if err := payload.Validate(); err != nil {
		return validationError(err)
	}
	return nil
}

func validationError(err error) error {
	fields := map[string]any{}
	var verrs validation.Errors
	if errors.As(err, &verrs) {
		for name, ferr := range verrs {
			fields[name] = ferr.Error()
		}
	} else {
		fields["payload"] = err.Error()
	}
	return goerrors.Wrap(err, goerrors.CategoryValidation, "The submitted parameters are not valid.").
		WithTextCode("VALIDATION_FAILED").
		WithMetadata(fields)
}
