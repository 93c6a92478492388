package notify

import (
	"embed"
	"fmt"
	"io/fs"
	"path"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"github.com/pelletier/go-toml/v2"
	"golang.org/x/text/language"
)

//go:embed locales/*.toml
var localesFS embed.FS

const (
	LanguageEn = "en"
	LanguageFr = "fr"
)

// Messages renders notification titles and bodies in one language.
type Messages struct {
	localizer *i18n.Localizer
}

// NewBundle loads every embedded message file.
func NewBundle() (*i18n.Bundle, error) {
	bundle := i18n.NewBundle(language.English)
	bundle.RegisterUnmarshalFunc("toml", toml.Unmarshal)
	files, err := fs.ReadDir(localesFS, "locales")
	if err != nil {
		return nil, err
	}
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		if _, err := bundle.LoadMessageFileFS(localesFS, path.Join("locales", f.Name())); err != nil {
			return nil, fmt.Errorf("load %s: %w", f.Name(), err)
		}
	}
	return bundle, nil
}

// New returns Messages for lang, falling back to English for missing keys.
func New(lang string) (*Messages, error) {
	bundle, err := NewBundle()
	if err != nil {
		return nil, err
	}
	if lang == "" {
		lang = LanguageEn
	}
	return &Messages{localizer: i18n.NewLocalizer(bundle, lang, LanguageEn)}, nil
}

// Overdue is the assignee's notice about their own task.
func (m *Messages) Overdue(taskName string, days int) (title, message string, err error) {
	title, err = m.localize("task_overdue_title", nil, nil)
	if err != nil {
		return "", "", err
	}
	message, err = m.localize("task_overdue_message", map[string]any{
		"TaskName": taskName,
		"Days":     days,
	}, days)
	return title, message, err
}

// Escalation is the manager's notice naming the assignee and the task.
func (m *Messages) Escalation(assigneeName, taskName string, days int) (title, message string, err error) {
	if assigneeName == "" {
		if assigneeName, err = m.localize("unknown_assignee", nil, nil); err != nil {
			return "", "", err
		}
	}
	title, err = m.localize("task_escalation_title", nil, nil)
	if err != nil {
		return "", "", err
	}
	message, err = m.localize("task_escalation_message", map[string]any{
		"AssigneeName": assigneeName,
		"TaskName":     taskName,
		"Days":         days,
	}, days)
	return title, message, err
}

func (m *Messages) localize(id string, data map[string]any, count any) (string, error) {
	msg, err := m.localizer.Localize(&i18n.LocalizeConfig{
		MessageID:    id,
		TemplateData: data,
		PluralCount:  count,
	})
	if err != nil {
		return "", fmt.Errorf("localize %s: %w", id, err)
	}
	return msg, nil
}

// SupportedLanguage reports whether lang parses and has a message file.
func SupportedLanguage(lang string) bool {
	tag, err := language.Parse(lang)
	if err != nil {
		return false
	}
	base, _ := tag.Base()
	switch base.String() {
	case LanguageEn, LanguageFr:
		return true
	}
	return false
}
