package services

import "testing"

func TestNormalizePhone(t *testing.T) {
	cases := map[string]string{
		"+1 (555) 111-1111":  "+15551111111",
		"+15551111111":       "+15551111111",
		"0015551111111":      "+15551111111",
		"555.111.1111":       "5551111111",
		"＋１５５５１１１１１１１": "+15551111111",
		"   ":                "",
		"n/a":                "",
	}
	for in, want := range cases {
		if got := NormalizePhone(in); got != want {
			t.Fatalf("NormalizePhone(%q) = %q; want %q", in, got, want)
		}
	}
}

func TestNormalizePhone_EquivalentFormsCollide(t *testing.T) {
	a := NormalizePhone("+1 555 222 2222")
	b := NormalizePhone("+1-555-222-2222")
	if a != b {
		t.Fatalf("expected %q == %q", a, b)
	}
}

func TestPhoneKey(t *testing.T) {
	want := PhoneKey("+1 555 111 1111")
	for _, in := range []string{"+15551111111", "15551111111", "0015551111111", "1-555-111-1111"} {
		if got := PhoneKey(in); got != want {
			t.Fatalf("PhoneKey(%q) = %q; want %q", in, got, want)
		}
	}
	if PhoneKey("5551111111") == want {
		t.Fatalf("national number without country code must not collide")
	}
	if PhoneKey("n/a") != "" {
		t.Fatalf("PhoneKey of junk should be empty")
	}
}

func TestMaskPhone(t *testing.T) {
	if got := MaskPhone("+15551234567"); got != "***4567" {
		t.Fatalf("MaskPhone = %q", got)
	}
	if got := MaskPhone("12"); got != "****" {
		t.Fatalf("MaskPhone short = %q", got)
	}
}
