package store

import "testing"

func TestSanitizeName(t *testing.T) {
	cases := []struct{ in, want string }{
		{"Alice", "Alice"},
		{"alice smith", "alice_smith"},
		{"  spaced   out  ", "spaced_out"},
		{"We're #1!", "Were_1"},
		{"under_score-ok", "under_score-ok"},
		{"tab\tand\nnewline", "tab_and_newline"},
		{"", "guest"},
		{"!!!", "guest"},
		{"   ", "guest"},
	}
	for _, tc := range cases {
		if got := SanitizeName(tc.in); got != tc.want {
			t.Fatalf("SanitizeName(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
