package action

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in    string
		want  Action
		known bool
	}{
		{"mark_as_read", Action{Kind: MarkAsRead}, true},
		{"mark_as_unread", Action{Kind: MarkAsUnread}, true},
		{"move_to_label:Finance", Action{Kind: MoveToLabel, Label: "Finance"}, true},
		{"move_to_label:Work:Urgent", Action{Kind: MoveToLabel, Label: "Work:Urgent"}, true},
		{"  mark_as_read ", Action{Kind: MarkAsRead}, true},
		{"move_to_label:", Action{Kind: MoveToLabel}, false},
		{"move_to_label", Action{Kind: MoveToLabel}, false},
		{"archive", Action{Kind: "archive"}, false},
		{"forward:boss@example.com", Action{Kind: "forward:boss@example.com"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := Parse(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.known, got.Known())
		})
	}
}

func TestStringRoundTrip(t *testing.T) {
	for _, s := range []string{"mark_as_read", "mark_as_unread", "move_to_label:Work:Urgent"} {
		assert.Equal(t, s, Parse(s).String())
	}
}
