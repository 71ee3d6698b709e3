package testing

import (
	"strings"

	va "github.com/go-ozzo/ozzo-validation/v4"
)

// Walk nested validation.Errors down the dotted path
func findErrorForPath(path string, errs va.Errors) (result va.Error) {
	pieces := strings.Split(path, ".")

	for i, piece := range pieces {
		var errGeneric error
		var ok bool

		if errGeneric, ok = errs[piece]; !ok {
			return
		}

		// Last piece holds the rule error, anything before it is another error map
		if i == len(pieces)-1 {
			result, _ = errGeneric.(va.Error)
			return
		}

		if errs, ok = errGeneric.(va.Errors); !ok {
			return
		}
	}
	return
}
