package student

import (
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/sala/core"
)

var (
	genderTag  = "gender"
	genderText = "gender must be MALE or FEMALE"

	pastDateTag  = "pastdate"
	pastDateText = "enter a valid date in the past"
)

// InitValidators registers the student validators.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(genderTag, genderValidation)
	core.RegisterCustomTranslation(validate, translator, genderTag, genderText)

	_ = validate.RegisterValidation(pastDateTag, pastDateValidation)
	core.RegisterCustomTranslation(validate, translator, pastDateTag, pastDateText)
}

func genderValidation(fl validator.FieldLevel) bool {
	return core.Contains(Genders, fl.Field().String())
}

func pastDateValidation(fl validator.FieldLevel) bool {
	date, err := core.ParseDate(fl.Field().String())
	return err == nil && date.Before(time.Now())
}
