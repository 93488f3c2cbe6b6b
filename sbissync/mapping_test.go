package sbissync

import (
	"encoding/json"
	"testing"
)

func TestMapServiceCode_RuleOrder(t *testing.T) {
	rules := DefaultMappingRules()

	cases := []struct {
		in   string
		want string
	}{
		{"sbis_online", "sbis"},
		{"sbis_cloud", "sbis"},
		{"sbis_cloud_premium", "sbis"},
		{"SBIS_ONLINE", "sbis"},
		{"  sbis  ", "sbis"},
		{"evotor_terminal", "evotor"},
		{"atol_fiscal", "atol"},
		{"unknown_widget", FallbackServiceCode},
		{"", FallbackServiceCode},
	}
	for _, c := range cases {
		if got := MapServiceCode(rules, c.in); got != c.want {
			t.Errorf("MapServiceCode(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestMapServiceCode_FirstMatchWins(t *testing.T) {
	rules := []MappingRule{
		{Substring: "cloud", Code: "first"},
		{Substring: "sbis_cloud", Code: "second"},
	}
	if got := MapServiceCode(rules, "sbis_cloud"); got != "first" {
		t.Errorf("expected slice-order match, got %q", got)
	}
}

func TestDecimalFromNumber(t *testing.T) {
	if got := decimalFromNumber(json.Number("1500.50")); got.String() != "1500.5" {
		t.Errorf("got %s", got)
	}
	if got := decimalFromNumber(json.Number("")); !got.IsZero() {
		t.Errorf("empty number should be zero, got %s", got)
	}
	if got := decimalFromNumber(json.Number("not-a-number")); !got.IsZero() {
		t.Errorf("garbage should be zero, got %s", got)
	}
}
