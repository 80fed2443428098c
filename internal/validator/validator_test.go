package validator

import "testing"

func TestValidUsernameLength_Boundaries(t *testing.T) {
	cases := map[string]bool{
		"ab":                    false, // 2 chars: reject
		"abc":                   true,  // 3 chars: accept
		"abcdefghijklmnopqrst":  true,  // 20 chars: accept
		"abcdefghijklmnopqrstu": false, // 21 chars: reject
	}
	for s, want := range cases {
		if got := ValidUsernameLength(s); got != want {
			t.Errorf("ValidUsernameLength(%q) = %v, want %v", s, got, want)
		}
	}
}

func TestValidUsernameFormat(t *testing.T) {
	if !ValidUsernameFormat("user_123") {
		t.Error("expected alnum+underscore username to be valid")
	}
	if ValidUsernameFormat("user-123") {
		t.Error("expected hyphenated username to be invalid")
	}
	if ValidUsernameFormat("user name") {
		t.Error("expected spaced username to be invalid")
	}
}

func TestValidEmail(t *testing.T) {
	valid := []string{"a@b.com", "first.last@sub.example.org"}
	for _, e := range valid {
		if !ValidEmail(e) {
			t.Errorf("expected %q to be valid", e)
		}
	}
	invalid := []string{"not-an-email", "a@b", "@b.com", "a@@b.com"}
	for _, e := range invalid {
		if ValidEmail(e) {
			t.Errorf("expected %q to be invalid", e)
		}
	}
}
