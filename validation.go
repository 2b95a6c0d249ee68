package portalAuth

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

const (
	roleTag     = "portalrole"
	notBlankTag = "notblank"
)

type inputValidator struct {
	validate   *validator.Validate
	translator ut.Translator
}

type loginInput struct {
	Email        string `json:"email" validate:"required,email,max=254"`
	Password     string `json:"password" validate:"required,max=1024"`
	ExpectedRole string `json:"role" validate:"omitempty,portalrole"`
}

type signupInput struct {
	Email       string `json:"email" validate:"required,email,max=254"`
	Password    string `json:"password" validate:"required,min=8,max=1024"`
	DisplayName string `json:"display_name" validate:"required,notblank,max=120"`
	Role        string `json:"role" validate:"required,portalrole"`
}

// profileUpdateInput flattens a ProfileUpdate; fields the update leaves nil are
// validated as empty and therefore skipped by omitempty.
type profileUpdateInput struct {
	DisplayName     string `json:"display_name" validate:"omitempty,max=120"`
	Department      string `json:"department" validate:"omitempty,max=120"`
	Phone           string `json:"phone" validate:"omitempty,max=32"`
	Bio             string `json:"bio" validate:"omitempty,max=2000"`
	ProfileImageURL string `json:"profile_image_url" validate:"omitempty,url,max=2048"`
	Website         string `json:"website" validate:"omitempty,url,max=2048"`
	LinkedIn        string `json:"linkedin" validate:"omitempty,url,max=2048"`
	GitHub          string `json:"github" validate:"omitempty,url,max=2048"`
	Twitter         string `json:"twitter" validate:"omitempty,url,max=2048"`
}

func newInputValidator() *inputValidator {
	v := validator.New(validator.WithRequiredStructEnabled())

	english := en.New()
	uni := ut.New(english, english)
	translator, _ := uni.GetTranslator("en")
	_ = en_translations.RegisterDefaultTranslations(v, translator)

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = v.RegisterValidation(roleTag, func(fl validator.FieldLevel) bool {
		return Role(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation(notBlankTag, func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})

	noop := func(ut.Translator) error { return nil }
	for _, tag := range []string{roleTag, notBlankTag} {
		_ = v.RegisterTranslation(tag, translator, noop, translateCustom)
	}

	return &inputValidator{validate: v, translator: translator}
}

func translateCustom(_ ut.Translator, fe validator.FieldError) string {
	switch fe.Tag() {
	case roleTag:
		return fe.Field() + " must be one of student, teacher, committee"
	case notBlankTag:
		return fe.Field() + " cannot be blank"
	default:
		return ""
	}
}

func (v *inputValidator) check(input any) error {
	err := v.validate.Struct(input)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &AuthError{Reason: ReasonInvalidInput, Err: err}
	}

	fields := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, FieldError{
			Field:   fe.Field(),
			Message: fe.Translate(v.translator),
		})
	}
	return &AuthError{Reason: ReasonInvalidInput, Fields: fields, Err: ErrInvalidInput}
}

func (v *inputValidator) login(email, password string, expected Role) error {
	return v.check(loginInput{Email: email, Password: password, ExpectedRole: string(expected)})
}

func (v *inputValidator) signup(email, password, displayName string, role Role) error {
	return v.check(signupInput{Email: email, Password: password, DisplayName: displayName, Role: string(role)})
}

func (v *inputValidator) profileUpdate(u ProfileUpdate) error {
	in := profileUpdateInput{
		DisplayName:     deref(u.DisplayName),
		Department:      deref(u.Department),
		Phone:           deref(u.Phone),
		Bio:             deref(u.Bio),
		ProfileImageURL: deref(u.ProfileImageURL),
	}
	if u.SocialLinks != nil {
		in.Website = u.SocialLinks.Website
		in.LinkedIn = u.SocialLinks.LinkedIn
		in.GitHub = u.SocialLinks.GitHub
		in.Twitter = u.SocialLinks.Twitter
	}
	if err := v.check(in); err != nil {
		return err
	}
	if u.DisplayName != nil && strings.TrimSpace(*u.DisplayName) == "" {
		return &AuthError{
			Reason: ReasonInvalidInput,
			Fields: []FieldError{{Field: "display_name", Message: "display_name cannot be blank"}},
			Err:    ErrInvalidInput,
		}
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
