package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnglishMessages(t *testing.T) {
	m, err := New("en")
	require.NoError(t, err)

	title, msg, err := m.Overdue("Payroll", 1)
	require.NoError(t, err)
	assert.Equal(t, "Task overdue", title)
	assert.Equal(t, `Task "Payroll" is 1 day overdue`, msg)

	_, msg, err = m.Overdue("Payroll", 4)
	require.NoError(t, err)
	assert.Equal(t, `Task "Payroll" is 4 days overdue`, msg)

	title, msg, err = m.Escalation("", "Payroll", 6)
	require.NoError(t, err)
	assert.Equal(t, "Overdue task escalation", title)
	assert.Equal(t, `A team member's task "Payroll" is 6 days overdue`, msg)
}

func TestFrenchMessages(t *testing.T) {
	m, err := New("fr")
	require.NoError(t, err)
	_, msg, err := m.Escalation("Alice", "Paie", 5)
	require.NoError(t, err)
	assert.Equal(t, "La tâche « Paie » de Alice a 5 jours de retard", msg)
}

func TestUnknownLanguageFallsBackToEnglish(t *testing.T) {
	m, err := New("de")
	require.NoError(t, err)
	title, _, err := m.Overdue("X", 2)
	require.NoError(t, err)
	assert.Equal(t, "Task overdue", title)
}

func TestSupportedLanguage(t *testing.T) {
	assert.True(t, SupportedLanguage("en"))
	assert.True(t, SupportedLanguage("fr-CA"))
	assert.False(t, SupportedLanguage("de"))
	assert.False(t, SupportedLanguage("???"))
}
