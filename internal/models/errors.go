package models

import "errors"

var (
	ErrRuleAccountRequired       = errors.New("rule requires an account id")
	ErrRuleNameRequired          = errors.New("rule requires a name")
	ErrRuleUnknownAction         = errors.New("unknown rule action")
	ErrRuleConfirmationTemplates = errors.New("confirmation rules require subject and body templates")
)
