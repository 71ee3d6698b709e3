package testing

import (
	"fmt"
	"strings"

	"github.com/chainaudit/chainaudit/pkg/errors"
	va "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/onsi/gomega/types"
)

// Matches a validation error for a field path like "LedgerConfig.RPCURL"
func HaveError(path string) types.GomegaMatcher {
	return &haveErrorMatcher{path: path}
}

// Like HaveError, the error must also carry the given code
func HaveErrorCode(path, code string) types.GomegaMatcher {
	return &haveErrorMatcher{path: path, code: code}
}

type haveErrorMatcher struct {
	path   string
	code   string
	result va.Error
}

func (m *haveErrorMatcher) Match(inputErr interface{}) (result bool, err error) {
	if inputErr == nil {
		return
	}
	actual, ok := inputErr.(error)
	if !ok {
		err = errors.New("need an error")
		return
	}
	var errs va.Errors
	if !errors.As(actual, &errs) {
		err = errors.Errorv("need a validation.Errors object", actual.Error())
		return
	}

	m.result = findErrorForPath(m.path, errs)
	if m.result == nil {
		return
	}

	result = m.code == "" || m.result.Code() == m.code
	return
}

func (m *haveErrorMatcher) FailureMessage(_ interface{}) (message string) {
	var sb strings.Builder
	sb.WriteString("Expected an error for field\n")
	fmt.Fprintf(&sb, "\t%s\n", m.path)
	if m.result == nil {
		sb.WriteString("but there is no error\n")
		return sb.String()
	}
	fmt.Fprintf(&sb, "with code\n\t%s\nbut the code was\n\t%s\n", m.code, m.result.Code())
	return sb.String()
}

func (m *haveErrorMatcher) NegatedFailureMessage(_ interface{}) (message string) {
	var sb strings.Builder
	sb.WriteString("Expected field\n")
	fmt.Fprintf(&sb, "\t%s\n", m.path)
	sb.WriteString("to not have an error, but it had an error of type\n")
	fmt.Fprintf(&sb, "\t%s\n", m.result.Code())
	return sb.String()
}
