package vault

import "testing"

func TestValidateToken(t *testing.T) {
	cases := []struct {
		token string
		want  bool
	}{
		{"123456789:AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA", true},
		{"1:ABCdefGHIjklMNOpqrSTUvwx_yz0123456789-X", true},
		{"", false},
		{"no-colon-at-all", false},
		{"abc:AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA", false},
		{"-5:AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA", false},
		{"0:AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA", false},
		{"123456789:short", false},
		{"123456789:AAAA AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA", false},
		{"123456789:", false},
		{":AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA", false},
	}
	for _, tc := range cases {
		if got := ValidateToken(tc.token); got != tc.want {
			t.Errorf("ValidateToken(%q) = %v, want %v", tc.token, got, tc.want)
		}
	}
}
