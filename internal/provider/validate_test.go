package provider

import "testing"

func TestValidEmail(t *testing.T) {
	valid := []string{"j.doe@globex.com", "a+b@sub.example.co", " padded@ex.com "}
	for _, s := range valid {
		if !ValidEmail(s) {
			t.Errorf("ValidEmail(%q) = false, want true", s)
		}
	}
	invalid := []string{"", "not-an-email", "a@b", "a b@ex.com", "@ex.com"}
	for _, s := range invalid {
		if ValidEmail(s) {
			t.Errorf("ValidEmail(%q) = true, want false", s)
		}
	}
}

func TestNormalizePhone(t *testing.T) {
	tests := []struct{ in, want string }{
		{"+1 (555) 010-2030", "+15550102030"},
		{"555.010.2030", "5550102030"},
		{"", ""},
		{"ext 42", "42"},
	}
	for _, tt := range tests {
		if got := NormalizePhone(tt.in); got != tt.want {
			t.Errorf("NormalizePhone(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestValidPhone(t *testing.T) {
	if !ValidPhone("+1 (555) 010-2030") {
		t.Error("full number should be valid")
	}
	if ValidPhone("010-2030") {
		t.Error("short numbers are extensions or junk")
	}
	if ValidPhone("") {
		t.Error("empty must be invalid")
	}
}

func TestRecordAccessors(t *testing.T) {
	rec := Record{
		"a":    "",
		"b":    "  value  ",
		"n":    float64(42),
		"flag": true,
		"sub":  map[string]any{"x": "y"},
		"list": []any{map[string]any{"k": "v"}, "junk"},
	}

	if got := rec.Str("a", "b"); got != "value" {
		t.Errorf("Str fallback = %q, want value", got)
	}
	if got := rec.Str("n"); got != "42" {
		t.Errorf("Str numeric = %q, want 42", got)
	}
	if !rec.Bool("flag") {
		t.Error("Bool should read the flag")
	}
	if rec.Sub("sub").Str("x") != "y" {
		t.Error("Sub should expose nested objects")
	}
	if list := rec.List("list"); len(list) != 1 || list[0].Str("k") != "v" {
		t.Errorf("List = %v, want one record", list)
	}
	if rec.Sub("missing") != nil {
		t.Error("missing Sub should be nil")
	}
}
