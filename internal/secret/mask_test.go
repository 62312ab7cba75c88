package secret

import "testing"

func TestMask(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"a", "*"},
		{"12345678", "********"},
		{"123456789", "123*****9"},
		{"sk-abcdefghij", "sk-*********j"},
	}
	for _, tc := range cases {
		if got := Mask(tc.in); got != tc.want {
			t.Fatalf("Mask(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
