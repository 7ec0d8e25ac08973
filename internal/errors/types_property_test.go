//go:build property

package errors

import (
	"fmt"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestSiteErrorProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.Rng.Seed(2468)
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	types := gen.OneConstOf(
		ErrorTypeNotFound, ErrorTypeUnavailable, ErrorTypeMalformedEdit,
		ErrorTypeSaveFailed, ErrorTypeValidation, ErrorTypeConflict,
		ErrorTypeForbidden, ErrorTypeConfig, ErrorTypeInternal,
	)

	properties.Property("classification survives wrapping", prop.ForAll(
		func(t ErrorType, code string, depth int) bool {
			var err error = &SiteError{Type: t, Code: code}
			for i := 0; i < depth%5; i++ {
				err = fmt.Errorf("layer %d: %w", i, err)
			}
			return hasType(err, t) && HTTPStatus(err) == HTTPStatus(&SiteError{Type: t})
		},
		types,
		gen.Identifier(),
		gen.IntRange(0, 10),
	))

	properties.Property("message names the code", prop.ForAll(
		func(t ErrorType, code, message string) bool {
			msg := (&SiteError{Type: t, Code: code, Message: message}).Error()
			return strings.HasPrefix(msg, "["+code+"]") && strings.Contains(msg, message)
		},
		types,
		gen.Identifier(),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}
