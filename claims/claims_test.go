package claims

import (
	"encoding/json"
	"testing"
	"time"
)

func TestAudienceForms(t *testing.T) {
	cases := []struct {
		name string
		aud  any
		want []string
	}{
		{"string", "app1", []string{"app1"}},
		{"array", []any{"app1", "app2"}, []string{"app1", "app2"}},
		{"string slice", []string{"app1"}, []string{"app1"}},
		{"absent", nil, nil},
	}
	for _, tc := range cases {
		c := Claims{}
		if tc.aud != nil {
			c["aud"] = tc.aud
		}
		got := c.Audience()
		if len(got) != len(tc.want) {
			t.Errorf("%s: got %v want %v", tc.name, got, tc.want)
			continue
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Errorf("%s: got %v want %v", tc.name, got, tc.want)
			}
		}
	}

	c := Claims{"aud": []any{"other", "app1"}}
	if !c.HasAudience("app1") {
		t.Error("expected aud to contain app1")
	}
	if c.HasAudience("app3") {
		t.Error("did not expect aud to contain app3")
	}
}

func TestNumericDateForms(t *testing.T) {
	at := time.Unix(1700000000, 0)

	for name, v := range map[string]any{
		"float64":     float64(1700000000),
		"int64":       int64(1700000000),
		"int":         int(1700000000),
		"json.Number": json.Number("1700000000"),
	} {
		c := Claims{"exp": v}
		got, ok := c.ExpiresAt()
		if !ok || !got.Equal(at) {
			t.Errorf("%s: got (%v, %v), want (%v, true)", name, got, ok, at)
		}
	}

	c := Claims{"exp": "not-a-number"}
	if _, ok := c.ExpiresAt(); ok {
		t.Error("expected non-numeric exp to be rejected")
	}
	if _, ok := (Claims{}).IssuedAt(); ok {
		t.Error("expected missing iat to report absent")
	}
}

func TestStringAccessors(t *testing.T) {
	c := Claims{"sub": "user-42", "iss": "https://idp.example", "nonce": "n-1", "acr": 3}
	if c.Subject() != "user-42" {
		t.Errorf("sub: got %q", c.Subject())
	}
	if c.Issuer() != "https://idp.example" {
		t.Errorf("iss: got %q", c.Issuer())
	}
	if c.Nonce() != "n-1" {
		t.Errorf("nonce: got %q", c.Nonce())
	}
	// Wrong type reads as empty, not a panic.
	if c.String("acr") != "" {
		t.Errorf("acr: got %q", c.String("acr"))
	}
}
