package tui

import "testing"

func TestParseCommand(t *testing.T) {
	tests := []struct {
		in   string
		want Command
	}{
		{"quit", Command{Name: "quit"}},
		{"q", Command{Name: "quit"}},
		{":dl 12", Command{Name: "download", Args: "12"}},
		{"  Upload /tmp/a.png  holiday ", Command{Name: "upload", Args: "/tmp/a.png  holiday"}},
		{"search hello world", Command{Name: "search", Args: "hello world"}},
		{"", Command{}},
	}
	for _, tt := range tests {
		if got := ParseCommand(tt.in); got != tt.want {
			t.Errorf("ParseCommand(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}
