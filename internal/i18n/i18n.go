// Package i18n holds every user-facing string the bot sends to a chat.
package i18n

import (
	"fmt"
	"slices"
)

const (
	// DefaultLanguage is the fallback language when no translation is available
	DefaultLanguage = "en"
	// BerneseGermanMessages is a Swiss Dialect spoken in the Canton of Bern
	BerneseGermanMessages = "ch_be"
)

// Localizer resolves message keys for one language.
type Localizer struct {
	language string
	messages map[string]string
}

// NewLocalizer creates a localizer, falling back to English for unknown languages.
func NewLocalizer(language string) *Localizer {
	if !IsSupported(language) {
		language = DefaultLanguage
	}
	return &Localizer{
		language: language,
		messages: getMessages(language),
	}
}

// Language returns the resolved language code.
func (l *Localizer) Language() string {
	return l.language
}

// T translates key. Missing keys fall back to English, then to the key itself.
func (l *Localizer) T(key string, args ...any) string {
	message, ok := l.messages[key]
	if !ok {
		message, ok = englishMessages[key]
	}
	if !ok {
		return key
	}
	if len(args) > 0 {
		return fmt.Sprintf(message, args...)
	}
	return message
}

// GetSupportedLanguages returns list of supported language codes
func GetSupportedLanguages() []string {
	return []string{DefaultLanguage, BerneseGermanMessages}
}

// IsSupported reports whether language has a message table.
func IsSupported(language string) bool {
	return slices.Contains(GetSupportedLanguages(), language)
}

func getMessages(language string) map[string]string {
	switch language {
	case BerneseGermanMessages:
		return berneseGermanMessages
	default:
		return englishMessages
	}
}
