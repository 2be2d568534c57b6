// Package lang maps user-facing language codes to the codes accepted by
// GPT-SoVITS for text_lang and prompt_lang.
package lang

import (
	"fmt"
	"slices"
	"strings"
)

// Codes accepted verbatim by GPT-SoVITS v2. The all_ variants disable
// mixed-language splitting.
var codes = []string{
	"auto", "auto_yue",
	"zh", "all_zh",
	"en",
	"ja", "all_ja",
	"ko", "all_ko",
	"yue", "all_yue",
}

// aliases maps ISO 639 codes and locales to service codes.
var aliases = map[string]string{
	"cmn":     "zh",
	"cn":      "zh",
	"zh-cn":   "zh",
	"zh-hans": "zh",
	"zh-sg":   "zh",
	"zh-tw":   "zh",
	"zh-hant": "zh",
	"zh-hk":   "yue",
	"zh-mo":   "yue",
	"jp":      "ja",
	"kr":      "ko",
}

// Codes returns the accepted service codes.
func Codes() []string {
	return slices.Clone(codes)
}

// Normalize lowercases code and maps locales such as "zh-CN" or "en_US" to
// the service code. Unknown codes are returned lowercased and trimmed.
func Normalize(code string) string {
	c := strings.ToLower(strings.TrimSpace(code))
	if slices.Contains(codes, c) {
		return c
	}
	c = strings.ReplaceAll(c, "_", "-")
	if mapped, ok := aliases[c]; ok {
		return mapped
	}
	if base, _, found := strings.Cut(c, "-"); found {
		if slices.Contains(codes, base) {
			return base
		}
		if mapped, ok := aliases[base]; ok {
			return mapped
		}
	}
	return c
}

// Validate checks that code normalizes to a supported service code.
func Validate(code string) error {
	if strings.TrimSpace(code) == "" {
		return fmt.Errorf("language is required (one of %s): %w", strings.Join(codes, ", "), ErrInvalid)
	}
	if !slices.Contains(codes, Normalize(code)) {
		return fmt.Errorf("unsupported language %q (use one of %s): %w", code, strings.Join(codes, ", "), ErrInvalid)
	}
	return nil
}
