// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// NormalizeKey returns the lookup form of an email or username: trimmed,
// Unicode NFC composed and upper-cased without locale rules.
func NormalizeKey(value string) string {
	// A Caser is stateful and must not be shared between goroutines.
	return cases.Upper(language.Und).String(norm.NFC.String(strings.TrimSpace(value)))
}
