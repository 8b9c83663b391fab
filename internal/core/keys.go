package core

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// NormalizeProductCode derives the join key from a raw identifier.
//
// The input is NFKC-folded, split on runs of non-alphanumeric characters,
// each segment loses its leading zeros (an all-zero segment becomes "0"),
// and the segments are upper-cased and concatenated. "0002-1433",
// "00002 1433" and "2-1433" all yield "21433". The result is empty when the
// input holds no letters or digits.
func NormalizeProductCode(raw string) string {
	raw = norm.NFKC.String(raw)
	if IsNullValue(CleanCell(raw)) {
		return ""
	}

	segments := strings.FieldsFunc(raw, func(r rune) bool {
		return !isCodeRune(r)
	})

	var b strings.Builder
	for _, seg := range segments {
		trimmed := strings.TrimLeft(seg, "0")
		if trimmed == "" {
			trimmed = "0"
		}
		b.WriteString(strings.ToUpper(trimmed))
	}
	return b.String()
}

// isCodeRune limits identifiers to ASCII letters and digits.
func isCodeRune(r rune) bool {
	return r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r))
}

// ResolveRegistryKey sets the product and package keys of a registry record.
// A record without a usable product code is rejected.
func ResolveRegistryKey(rec *RegistryRecord) *RowError {
	rec.ProductCode = NormalizeProductCode(rec.RawProductCode)
	if rec.ProductCode == "" {
		return &RowError{
			Dataset: DatasetRegistry,
			Line:    rec.Line,
			Field:   FieldProductCode,
			Value:   rec.RawProductCode,
			Code:    CodeMissingProductCode,
			Reason:  "missing or malformed product code",
			Fatal:   true,
		}
	}

	pkg := NormalizeProductCode(rec.PackageCode)
	if pkg == "" {
		pkg = rec.ProductCode
	}
	rec.PackageCode = pkg
	return nil
}

// ResolveShortageKey sets the product code of an event. Events without a
// usable code stay in the batch and report Joinable() == false.
func ResolveShortageKey(ev *ShortageEvent) {
	ev.ProductCode = NormalizeProductCode(TextOrEmpty(ev.RawProductCode))
}
