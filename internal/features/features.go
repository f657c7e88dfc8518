// Package features turns editor features (captions, audio enhancement,
// rule-driven auto edit) into operation batches. Producers only read the
// document; the batches still go through the timeline gateway.
package features

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var ErrInvalidInput = errors.New("invalid feature input")

// validate is shared by every request type in the package.
var validate *validator.Validate

func init() {
	validate = validator.New()
	if err := validate.RegisterValidation("rule_expr", validateRuleExpr); err != nil {
		panic(fmt.Sprintf("features: register rule_expr validation: %v", err))
	}
}

// validateRuleExpr accepts expressions that compile against ClipEnv.
func validateRuleExpr(fl validator.FieldLevel) bool {
	_, err := compileRule(fl.Field().String())
	return err == nil
}

func checkStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		msgs := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
		}
		return fmt.Errorf("%w: %s", ErrInvalidInput, strings.Join(msgs, "; "))
	}
	return fmt.Errorf("%w: %v", ErrInvalidInput, err)
}
