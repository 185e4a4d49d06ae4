package operator

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/Mindburn-Labs/arbiter/pkg/contracts"
)

func registerStrings(r *Registry) {
	register(r, "contains", stringOp(strings.Contains), requireStringValue)
	register(r, "starts_with", stringOp(strings.HasPrefix), requireStringValue)
	register(r, "ends_with", stringOp(strings.HasSuffix), requireStringValue)

	// matches is case-sensitive; an invalid pattern evaluates to false
	// rather than raising.
	register(r, "matches", func(field, value any, _ *contracts.Context) bool {
		s, ok := field.(string)
		if !ok {
			return false
		}
		pattern, ok := value.(string)
		if !ok {
			return false
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return false
		}
		return re.MatchString(s)
	}, requireStringValue)
}

func stringOp(fn func(s, substr string) bool) func(field, value any, ctx *contracts.Context) bool {
	return func(field, value any, _ *contracts.Context) bool {
		s, ok := field.(string)
		if !ok {
			return false
		}
		sub, ok := value.(string)
		if !ok {
			return false
		}
		return fn(s, sub)
	}
}

func requireStringValue(value any) error {
	if _, ok := value.(string); !ok {
		return fmt.Errorf("value must be a string")
	}
	return nil
}
