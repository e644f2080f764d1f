// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"strings"

	"github.com/go-playground/validator/v10"
)

// maxIdentifierLen bounds record identifiers.
const maxIdentifierLen = 64

var validate *validator.Validate

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("identifier", validateIdentifier)
}

// validateIdentifier accepts a non-empty token with no whitespace.
func validateIdentifier(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	return s != "" && len(s) <= maxIdentifierLen && !strings.ContainsAny(s, " \t\r\n")
}

// ValidateArticle checks field constraints on a record: a well-formed
// identifier, a title, and a relevance score within [0, 100].
func ValidateArticle(a ArticleRecord) error {
	return validate.Struct(a)
}

// ValidateEntry checks the entry header fields and every article in it.
func ValidateEntry(e Entry) error {
	return validate.Struct(e)
}

// ValidateConfig checks the loaded configuration.
func ValidateConfig(c Config) error {
	return validate.Struct(c)
}
