package syntax

import "testing"

func TestCheckEmailValid(t *testing.T) {
	valid := []string{
		"user@example.com",
		"first.last@sub.example.com",
		"weird+tag@example.org",
		`"quoted local"@example.com`,
		"user@[192.168.1.1]",
		"user@xn--ls8h.example",
	}
	for _, addr := range valid {
		if !CheckEmail(addr, false) {
			t.Errorf("CheckEmail(%q) = false, want true", addr)
		}
	}
}

func TestCheckEmailInvalid(t *testing.T) {
	invalid := []string{
		"",
		"not-an-email",
		"user@",
		"@example.com",
		"user@@example.com",
		"user@example",
		"user@.com",
		"us\rer@example.com",
		"user@exam\nple.com",
	}
	for _, addr := range invalid {
		if CheckEmail(addr, false) {
			t.Errorf("CheckEmail(%q) = true, want false", addr)
		}
	}
}

func TestCheckEmailTooLong(t *testing.T) {
	long := ""
	for len(long) < MaxLength+10 {
		long += "a"
	}
	addr := long + "@example.com"
	if CheckEmail(addr, false) {
		t.Errorf("CheckEmail of overlong address returned true")
	}
}

func TestCheckEmailRightmostAt(t *testing.T) {
	// The rightmost @ delimits local/domain; a quoted local part may
	// contain an @ itself.
	if !CheckEmail(`"a@b"@example.com`, false) {
		t.Errorf(`CheckEmail("a@b"@example.com) = false, want true`)
	}
}

func TestToASCIIIdempotent(t *testing.T) {
	cases := []string{"Example.COM", "xn--ls8h.example", "café.example"}
	for _, c := range cases {
		once, err := ToASCII(c)
		if err != nil {
			t.Fatalf("ToASCII(%q) error: %v", c, err)
		}
		twice, err := ToASCII(once)
		if err != nil {
			t.Fatalf("ToASCII(%q) error: %v", once, err)
		}
		if once != twice {
			t.Errorf("ToASCII not idempotent: %q -> %q -> %q", c, once, twice)
		}
	}
}

func TestToASCIILowercases(t *testing.T) {
	got, err := ToASCII("EXAMPLE.COM")
	if err != nil {
		t.Fatal(err)
	}
	if got != "example.com" {
		t.Errorf("ToASCII(EXAMPLE.COM) = %q, want example.com", got)
	}
}
