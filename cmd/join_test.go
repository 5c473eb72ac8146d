package cmd

import "testing"

func TestParseRoomInput(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "bare code", input: "4821", want: "4821"},
		{name: "leading zeros", input: "0042", want: "0042"},
		{name: "room link", input: "https://huddle-chat.app/r/4821", want: "4821"},
		{name: "custom domain link", input: "https://example.com/r/0042", want: "0042"},
		{name: "trailing slash", input: "https://huddle-chat.app/r/4821/", want: "4821"},
		{name: "too short", input: "482", wantErr: true},
		{name: "letters", input: "48a1", wantErr: true},
		{name: "link without code", input: "https://huddle-chat.app/about", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseRoomInput(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}
