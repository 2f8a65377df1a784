package relyingparty

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"regexp"

	"github.com/go-playground/validator/v10"
	"github.com/pilab-dev/ssobridge/domain"
	serrors "github.com/pilab-dev/ssobridge/errors"
	"github.com/pilab-dev/ssobridge/internal/audit"
	"github.com/pilab-dev/ssobridge/internal/metrics"
)

// RegisterInput is the sign up form.
type RegisterInput struct {
	Username        string `form:"username"        json:"username"        validate:"required,max=50"`
	FullName        string `form:"fullname"        json:"fullname"        validate:"max=500"`
	Email           string `form:"email"           json:"email"           validate:"omitempty,email"`
	Phone           string `form:"phone"           json:"phone"           validate:"omitempty,e164ua"`
	Password        string `form:"password"        json:"password"        validate:"required,min=8,max=16"`
	ConfirmPassword string `form:"confirmPassword" json:"confirmPassword" validate:"eqfield=Password"`
}

var uaPhone = regexp.MustCompile(`^\+380\d{9}$`)

type registrationValidator struct {
	v *validator.Validate
}

func newRegistrationValidator() *registrationValidator {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		if name := f.Tag.Get("form"); name != "" {
			return name
		}
		return f.Name
	})
	// Registration of a static tag cannot fail.
	_ = v.RegisterValidation("e164ua", func(fl validator.FieldLevel) bool {
		return uaPhone.MatchString(fl.Field().String())
	})

	return &registrationValidator{v: v}
}

// Register creates a local account. Field problems, a taken username
// included, come back as *errors.ValidationErrors.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*domain.Account, error) {
	if err := s.validate.v.Struct(in); err != nil {
		return nil, serrors.FromValidator(err)
	}

	acc, err := s.accounts.Create(ctx, &domain.Account{
		Username: in.Username,
		Email:    in.Email,
		Phone:    in.Phone,
		FullName: in.FullName,
		Active:   true,
	}, in.Password)
	if errors.Is(err, domain.ErrUsernameTaken) {
		return nil, serrors.NewValidationErrors(map[string]string{"username": "is already taken"})
	}
	if err != nil {
		return nil, fmt.Errorf("create account: %w", err)
	}

	metrics.UserRegisteredTotal.Inc()
	s.audit.Raise(ctx, audit.Event{
		Type:     audit.Success,
		Name:     audit.UserRegistered,
		Subject:  acc.ID,
		Username: acc.Username,
		Service:  serviceName,
	})

	return acc, nil
}
