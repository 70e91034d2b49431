package attendance

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/sala/core"
)

var (
	statusTag  = "attstatus"
	statusText = "status must be PRESENT, ABSENT, LATE or PERMISSION"

	sessionTag  = "attsession"
	sessionText = "session must be MORNING or AFTERNOON"
)

func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(statusTag, statusValidation)
	core.RegisterCustomTranslation(validate, translator, statusTag, statusText)
	_ = validate.RegisterValidation(sessionTag, sessionValidation)
	core.RegisterCustomTranslation(validate, translator, sessionTag, sessionText)
}

func statusValidation(fl validator.FieldLevel) bool {
	return core.Contains(Statuses, fl.Field().String())
}

func sessionValidation(fl validator.FieldLevel) bool {
	return core.Contains(Sessions, fl.Field().String())
}
