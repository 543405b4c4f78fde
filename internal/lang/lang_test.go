package lang

import (
	"reflect"
	"testing"
)

func TestCanonical(t *testing.T) {
	tests := []struct{ in, want string }{
		{"en", "en"},
		{"en_us", "en-US"},
		{" TE ", "te"},
		{"", "auto"},
		{"auto", "auto"},
		{"AUTO", "auto"},
		{"!!", "auto"},
	}
	for _, tt := range tests {
		if got := Canonical(tt.in); got != tt.want {
			t.Errorf("Canonical(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestBaseAndRegional(t *testing.T) {
	if got := Base("pt-BR"); got != "pt" {
		t.Errorf("Base(pt-BR) = %q", got)
	}
	if got := Base("auto"); got != "" {
		t.Errorf("Base(auto) = %q", got)
	}
	tests := []struct{ in, want string }{
		{"te", "te-IN"},
		{"en", "en-US"},
		{"ja", "ja-JP"},
		{"fr-CA", "fr-CA"},
	}
	for _, tt := range tests {
		if got := Regional(tt.in); got != tt.want {
			t.Errorf("Regional(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestName(t *testing.T) {
	tests := []struct{ in, want string }{
		{"te", "Telugu"},
		{"ta", "Tamil"},
		{"hi", "Hindi"},
		{"de", "German"},
		{"zz-invalid-", "zz-invalid-"},
	}
	for _, tt := range tests {
		if got := Name(tt.in); got != tt.want {
			t.Errorf("Name(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCatalogAndLookup(t *testing.T) {
	cat := Catalog()
	if len(cat) == 0 || cat[0].Code != "en" {
		t.Fatalf("catalog = %+v", cat)
	}
	for _, l := range cat {
		if l.Name == "" || l.Name == l.Code {
			t.Errorf("%s has no display name", l.Code)
		}
	}
	l, ok := Lookup("hi-IN")
	if !ok || l.Code != "hi" || !l.TTS {
		t.Errorf("Lookup(hi-IN) = %+v, %v", l, ok)
	}
	if _, ok := Lookup("sw"); ok {
		t.Error("Lookup(sw) found a language outside the catalog")
	}
}

func TestNormalize(t *testing.T) {
	got := Normalize([]string{"te", "TE", "", "auto", "ta-IN", "hi"})
	want := []string{"te", "ta", "hi"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Normalize = %v, want %v", got, want)
	}
}
