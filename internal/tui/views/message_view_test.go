package views

import (
	"strings"
	"testing"

	"github.com/matheus3301/chatsync/internal/api"
	"github.com/matheus3301/chatsync/internal/chat"
)

func TestRenderMessage(t *testing.T) {
	tests := []struct {
		name string
		msg  api.Message
		want []string
	}{
		{
			name: "own text",
			msg:  api.Message{Author: "me", Type: "text", SendState: "sent", Text: "hello"},
			want: []string{"You", "hello"},
		},
		{
			name: "pending",
			msg:  api.Message{Author: "me", Type: "text", SendState: "pending", Text: "x"},
			want: []string{"sending"},
		},
		{
			name: "failed shows retry id",
			msg:  api.Message{Author: "me", Type: "text", SendState: "failed", OutboxID: "ob1", ErrorReason: "offline"},
			want: []string{"failed: offline", ":retry ob1"},
		},
		{
			name: "attachment shows download ordinal",
			msg: api.Message{
				Author: "bob", Type: "attachment", SendState: "sent",
				Ordinal:    chat.Ordinal{Base: 12},
				Attachment: &api.Attachment{FileName: "cat.png", FileSize: 2048},
			},
			want: []string{"bob", "cat.png", "2.0 KiB", ":download 12"},
		},
		{
			name: "deleted",
			msg:  api.Message{Author: "bob", SendState: "deleted"},
			want: []string{"bob deleted a message"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RenderMessage(tt.msg, "me")
			for _, w := range tt.want {
				if !strings.Contains(got, w) {
					t.Errorf("RenderMessage() = %q, missing %q", got, w)
				}
			}
		})
	}
}

func TestSanitizeForTerminal(t *testing.T) {
	in := "ok \U0001F44D\U0001F3FD a\u200Db \u2764\uFE0F"
	want := "ok \U0001F44D ab \u2764"
	if got := sanitizeForTerminal(in); got != want {
		t.Errorf("sanitizeForTerminal() = %q, want %q", got, want)
	}
}

func TestDisplayName(t *testing.T) {
	tests := []struct {
		conv api.Conversation
		want string
	}{
		{api.Conversation{ID: "c", TeamName: "eng", ChannelName: "general"}, "eng#general"},
		{api.Conversation{ID: "c", Participants: []string{"alice", "bob"}}, "alice, bob"},
		{api.Conversation{ID: "c", TLFName: "alice,bob"}, "alice,bob"},
		{api.Conversation{ID: "c"}, "c"},
	}
	for _, tt := range tests {
		if got := DisplayName(tt.conv); got != tt.want {
			t.Errorf("DisplayName(%+v) = %q, want %q", tt.conv, got, tt.want)
		}
	}
}

func TestHumanSize(t *testing.T) {
	if got := humanSize(512); got != "512 B" {
		t.Errorf("humanSize(512) = %q", got)
	}
	if got := humanSize(3 * 1024 * 1024); got != "3.0 MiB" {
		t.Errorf("humanSize(3MiB) = %q", got)
	}
}

func TestRenderSnippet(t *testing.T) {
	got := RenderSnippet("see [red] the <<invoice>> now")
	if !strings.Contains(got, "[yellow::b]invoice[-:-:-]") {
		t.Errorf("RenderSnippet() = %q, want highlighted match", got)
	}
	if strings.Contains(got, "<<") || strings.Contains(got, ">>") {
		t.Errorf("RenderSnippet() = %q, markers left in", got)
	}
	if strings.Contains(got, "[red]") {
		t.Errorf("RenderSnippet() = %q, user text not escaped", got)
	}
}
