// Package localization provides the translated texts of API errors and
// system messages. Translations are JSON files named by language code
// (e.g. "en.json") and are embedded into the binary.
package localization

import (
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"path"
	"strings"
	"sync"

	"golang.org/x/text/language"
)

//go:embed locales/*.json
var embedded embed.FS

// KeyMemberLeft is the text of the SYSTEM message posted when a member leaves a group.
const KeyMemberLeft = "SYSTEM_MEMBER_LEFT"

// Localizer manages the translations for the application.
type Localizer struct {
	mu           sync.RWMutex
	translations map[string]map[string]string
	defaultLang  string
	matcher      language.Matcher
	langs        []string
}

// Default loads the embedded translations.
func Default(defaultLang string) (*Localizer, error) {
	return NewLocalizer(embedded, "locales", defaultLang)
}

// NewLocalizer loads every *.json file of dir in fsys.
func NewLocalizer(fsys fs.FS, dir, defaultLang string) (*Localizer, error) {
	l := &Localizer{
		translations: make(map[string]map[string]string),
		defaultLang:  defaultLang,
	}

	files, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read localization directory: %w", err)
	}

	var tags []language.Tag
	for _, file := range files {
		if file.IsDir() || !strings.HasSuffix(file.Name(), ".json") {
			continue
		}
		lang := strings.TrimSuffix(file.Name(), ".json")

		data, err := fs.ReadFile(fsys, path.Join(dir, file.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read localization file %s: %w", file.Name(), err)
		}
		var translations map[string]string
		if err := json.Unmarshal(data, &translations); err != nil {
			return nil, fmt.Errorf("failed to parse localization file %s: %w", file.Name(), err)
		}
		l.translations[lang] = translations

		tag, err := language.Parse(lang)
		if err != nil {
			return nil, fmt.Errorf("localization file %s is not named by a language tag: %w", file.Name(), err)
		}
		tags = append(tags, tag)
		l.langs = append(l.langs, lang)
	}
	if _, ok := l.translations[defaultLang]; !ok {
		return nil, fmt.Errorf("no translations for default language %q", defaultLang)
	}

	// the matcher falls back to its first tag
	for i, lang := range l.langs {
		if lang == defaultLang {
			tags[0], tags[i] = tags[i], tags[0]
			l.langs[0], l.langs[i] = l.langs[i], l.langs[0]
		}
	}
	l.matcher = language.NewMatcher(tags)
	return l, nil
}

// Match picks the best supported language for an Accept-Language value.
func (l *Localizer) Match(acceptLanguage string) string {
	if acceptLanguage == "" {
		return l.defaultLang
	}
	_, idx := language.MatchStrings(l.matcher, acceptLanguage)
	return l.langs[idx]
}

// GetString returns the localized string for a given key and language.
// Missing keys fall back to the default language and then to the key itself.
func (l *Localizer) GetString(lang, key string) string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if langTranslations, ok := l.translations[lang]; ok {
		if value, ok := langTranslations[key]; ok {
			return value
		}
	}
	if lang != l.defaultLang {
		if value, ok := l.translations[l.defaultLang][key]; ok {
			return value
		}
	}
	return key
}

// Format is GetString followed by fmt.Sprintf.
func (l *Localizer) Format(lang, key string, args ...interface{}) string {
	return fmt.Sprintf(l.GetString(lang, key), args...)
}

// DefaultLanguage is the language used when a client expresses no preference.
func (l *Localizer) DefaultLanguage() string {
	return l.defaultLang
}
