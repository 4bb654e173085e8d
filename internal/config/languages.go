package config

import (
	"fmt"
	"strings"

	"github.com/jchantrell/nxpkg/internal/content"
)

// supportedLanguages lists the control block languages in table order
func supportedLanguages() string {
	names := make([]string, 0, content.LanguageCount)
	for l := content.Language(0); l < content.LanguageCount; l++ {
		names = append(names, l.String())
	}
	return strings.Join(names, ", ")
}

// validateLanguages ensures all provided languages are supported
// Returns error if any language is invalid
// If languages slice is empty, returns nil (control block table order is used)
func validateLanguages(languages []string) error {
	if len(languages) == 0 {
		return nil
	}

	for _, lang := range languages {
		if lang == "" {
			return fmt.Errorf("language name cannot be empty")
		}

		if _, ok := content.LanguageByName(lang); !ok {
			return fmt.Errorf("unsupported language '%s': supported languages are %s", lang, supportedLanguages())
		}
	}

	return nil
}
