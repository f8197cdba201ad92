package shared

import (
	"errors"
	"testing"
)

func TestBrowserCommand(t *testing.T) {
	const authURL = "https://accounts.spotify.com/authorize?state=abc"

	tests := []struct {
		goos    string
		url     string
		want    string
		wantErr bool
	}{
		{"darwin", authURL, "open", false},
		{"linux", authURL, "xdg-open", false},
		{"windows", authURL, "rundll32", false},
		{"plan9", authURL, "", true},
		{"linux", "file:///etc/passwd", "", true},
		{"linux", "not a url", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.goos+" "+tt.url, func(t *testing.T) {
			cmd, err := browserCommand(tt.goos, tt.url)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if cmd.Args[0] != tt.want || cmd.Args[len(cmd.Args)-1] != tt.url {
				t.Errorf("unexpected command %v", cmd.Args)
			}
		})
	}

	t.Run("rejects non web URLs as invalid arguments", func(t *testing.T) {
		_, err := browserCommand("linux", "javascript:alert(1)")
		if !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})
}
