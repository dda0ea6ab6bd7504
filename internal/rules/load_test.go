package rules

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rulemate/internal/action"
)

const rulesJSON = `{
  "rulesets": [
    {
      "name": "Finance",
      "global_predicate": "ALL",
      "rules": [
        {"field": "Subject", "predicate": "Contains", "value": "invoice"},
        {"field": "from", "predicate": "contains", "value": "acme.com"}
      ],
      "actions": ["move_to_label:Finance:2024", "mark_as_read"]
    },
    {
      "name": "Old",
      "global_predicate": "any",
      "rules": [
        {"field": "received", "predicate": "greater_than_days", "value": "30"}
      ],
      "actions": ["mark_as_unread"]
    }
  ]
}`

func TestParseJSON(t *testing.T) {
	log, _ := test.NewNullLogger()

	rulesets, err := Parse([]byte(rulesJSON), "json", log)
	require.NoError(t, err)
	require.Len(t, rulesets, 2)

	finance := rulesets[0]
	assert.Equal(t, "Finance", finance.Name)
	assert.Equal(t, All, finance.GlobalPredicate)
	require.Len(t, finance.Rules, 2)
	assert.Equal(t, Rule{Field: FieldSubject, Predicate: Contains, Value: "invoice"}, finance.Rules[0])
	assert.Equal(t, FieldSender, finance.Rules[1].Field)
	assert.Equal(t, []action.Action{
		{Kind: action.MoveToLabel, Label: "Finance:2024"},
		{Kind: action.MarkAsRead},
	}, finance.Actions)

	assert.Equal(t, Any, rulesets[1].GlobalPredicate)
	assert.Equal(t, GreaterThanDays, rulesets[1].Rules[0].Predicate)
}

func TestParseYAML(t *testing.T) {
	log, _ := test.NewNullLogger()

	data := `
rulesets:
  - name: Newsletters
    global_predicate: any
    rules:
      - field: sender
        predicate: equals
        value: news@example.com
      - field: received
        predicate: less_than_days
        value: 7
    actions:
      - mark_as_read
`
	rulesets, err := Parse([]byte(data), "yaml", log)
	require.NoError(t, err)
	require.Len(t, rulesets, 1)
	assert.Equal(t, "7", rulesets[0].Rules[1].Value)
}

func TestParseUnknownFieldIsError(t *testing.T) {
	log, _ := test.NewNullLogger()

	data := `{"rulesets": [{"name": "x", "global_predicate": "all",
		"rules": [{"field": "body", "predicate": "contains", "value": "a"}], "actions": []}]}`
	_, err := Parse([]byte(data), "json", log)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown field "body"`)
}

func TestParseMissingNameIsError(t *testing.T) {
	log, _ := test.NewNullLogger()

	_, err := Parse([]byte(`{"rulesets": [{"global_predicate": "all"}]}`), "json", log)
	assert.Error(t, err)
}

func TestParseWarnsOnUnknownPredicateAndAction(t *testing.T) {
	log, hook := test.NewNullLogger()

	data := `{"rulesets": [{"name": "x", "global_predicate": "some",
		"rules": [{"field": "subject", "predicate": "regex", "value": "a"}],
		"actions": ["archive", "move_to_label:"]}]}`
	rulesets, err := Parse([]byte(data), "json", log)
	require.NoError(t, err)
	require.Len(t, rulesets, 1)
	assert.Len(t, rulesets[0].Actions, 2)

	warnings := 0
	for _, entry := range hook.AllEntries() {
		if entry.Level == logrus.WarnLevel {
			warnings++
		}
	}
	assert.Equal(t, 4, warnings)
}

func TestLoaderReloadKeepsPreviousOnError(t *testing.T) {
	log, _ := test.NewNullLogger()
	path := filepath.Join(t.TempDir(), "rules.json")
	require.NoError(t, os.WriteFile(path, []byte(rulesJSON), 0o600))

	loader, err := NewLoader(path, log)
	require.NoError(t, err)
	require.Len(t, loader.Rulesets(), 2)

	var notified [][]Ruleset
	loader.OnChange(func(rs []Ruleset) { notified = append(notified, rs) })

	require.NoError(t, os.WriteFile(path, []byte(`{"rulesets": [{"name": "x", "global_predicate": "all",
		"rules": [{"field": "nope", "predicate": "contains", "value": "a"}]}]}`), 0o600))
	assert.Error(t, loader.Reload())
	assert.Len(t, loader.Rulesets(), 2)
	assert.Empty(t, notified)

	require.NoError(t, os.WriteFile(path, []byte(`{"rulesets": [{"name": "only", "global_predicate": "any"}]}`), 0o600))
	require.NoError(t, loader.Reload())
	require.Len(t, loader.Rulesets(), 1)
	assert.Equal(t, "only", loader.Rulesets()[0].Name)
	assert.Len(t, notified, 1)
}

func TestNewLoaderMissingFile(t *testing.T) {
	log, _ := test.NewNullLogger()
	_, err := NewLoader(filepath.Join(t.TempDir(), "missing.json"), log)
	assert.Error(t, err)
}
