package valid

import (
	"regexp"
	"strings"

	"github.com/asaskevich/govalidator"
	va "github.com/go-ozzo/ozzo-validation/v4"
)

//
// Errors

var (
	ErrExtension  = va.NewError("valid_is_extension", "must be formatted like \".py\"")
	ErrEthAddress = va.NewError("valid_is_eth_address", "must be a 0x prefixed 40 digit hex address")
	ErrEmail      = va.NewError("valid_is_email", "must be a valid email address")
	ErrURL        = va.NewError("valid_is_url", "must be an absolute URL")
)

var ethAddressRegex = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

//
// Rules, empty values pass so they combine with va.Required

// Extension

var Extension = va.NewStringRuleWithError(func(s string) bool {
	return s == "" || (strings.HasPrefix(s, ".") && !strings.HasSuffix(s, "."))
}, ErrExtension)

// EthAddress

var EthAddress = va.NewStringRuleWithError(func(s string) bool {
	return s == "" || ethAddressRegex.MatchString(s)
}, ErrEthAddress)

// Email, also a document key so path separators are refused

var Email = va.NewStringRuleWithError(func(s string) bool {
	return s == "" || (govalidator.IsEmail(s) && !strings.ContainsAny(s, `/\`))
}, ErrEmail)

// URL

var URL = va.NewStringRuleWithError(func(s string) bool {
	return s == "" || (govalidator.IsRequestURL(s) && strings.Contains(s, "://"))
}, ErrURL)
