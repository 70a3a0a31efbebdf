package identify

import (
	"strings"
	"testing"
)

func fieldByName(t *testing.T, name string) Field {
	t.Helper()
	for _, f := range Form() {
		if f.Name == name {
			return f
		}
	}
	t.Fatalf("no field named %q", name)
	return Field{}
}

func TestFormOrder(t *testing.T) {
	form := Form()
	want := []string{FieldSurname, FieldFirstName, FieldClass}
	if len(form) != len(want) {
		t.Fatalf("expected %d fields, got %d", len(want), len(form))
	}
	for i, name := range want {
		if form[i].Name != name {
			t.Errorf("field %d: expected %q, got %q", i, name, form[i].Name)
		}
	}
}

func TestNameRuleAcceptsVerbatim(t *testing.T) {
	f := fieldByName(t, FieldSurname)

	got, rej := f.Validate("Ivanov")
	if rej != nil {
		t.Fatalf("unexpected rejection: %q", rej.Reason)
	}
	if got != "Ivanov" {
		t.Errorf("expected value recorded verbatim, got %q", got)
	}
}

func TestNameRuleLength(t *testing.T) {
	f := fieldByName(t, FieldFirstName)

	tests := []struct {
		name   string
		text   string
		reject bool
	}{
		{"short name", "Petr", false},
		{"99 runes accepted", strings.Repeat("a", 99), false},
		{"100 runes rejected", strings.Repeat("a", 100), true},
		{"100 cyrillic runes rejected", strings.Repeat("ж", 100), true},
		{"99 cyrillic runes accepted", strings.Repeat("ж", 99), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, rej := f.Validate(tt.text)
			if tt.reject && rej == nil {
				t.Fatal("expected rejection")
			}
			if !tt.reject && rej != nil {
				t.Fatalf("unexpected rejection: %q", rej.Reason)
			}
		})
	}
}

func TestClassRule(t *testing.T) {
	f := fieldByName(t, FieldClass)

	tests := []struct {
		name       string
		text       string
		want       string
		wantReason string // substring of the rejection reason, empty for accept
	}{
		{"latin label uppercased", "5zh", "5ZH", ""},
		{"cyrillic label uppercased", "5ж", "5Ж", ""},
		{"already uppercase", "10B", "10B", ""},
		{"grade zero", "0A", "", "less than 1"},
		{"grade too large", "12B", "", "greater than 11"},
		{"no digits", "abc", "", "NUMBER then LETTER"},
		{"no letters", "7", "", "NUMBER then LETTER"},
		{"garbage around label", "class 5A please", "", "NUMBER then LETTER"},
		{"grade eleven", "11v", "11V", ""},
		{"grade one", "1a", "1A", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, rej := f.Validate(tt.text)
			if tt.wantReason == "" {
				if rej != nil {
					t.Fatalf("unexpected rejection: %q", rej.Reason)
				}
				if got != tt.want {
					t.Errorf("expected %q, got %q", tt.want, got)
				}
				return
			}
			if rej == nil {
				t.Fatalf("expected rejection containing %q, got value %q", tt.wantReason, got)
			}
			if !strings.Contains(rej.Reason, tt.wantReason) {
				t.Errorf("rejection %q does not mention %q", rej.Reason, tt.wantReason)
			}
		})
	}
}
