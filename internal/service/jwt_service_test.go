package service

import (
	"errors"
	"testing"
	"time"
)

func TestJWTIssueAndParse(t *testing.T) {
	svc := NewJWTService("test-secret")

	token, expires, err := svc.Issue("user-42", time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if time.Until(expires) < 59*time.Minute {
		t.Fatalf("expiry too soon: %v", expires)
	}

	claims, err := svc.Parse(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.UserID != "user-42" {
		t.Fatalf("user_id = %q, want user-42", claims.UserID)
	}
}

func TestJWTExpired(t *testing.T) {
	svc := NewJWTService("test-secret")
	token, _, err := svc.Issue("user-42", time.Nanosecond)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	if _, err := svc.Parse(token); !errors.Is(err, ErrJWTExpired) {
		t.Fatalf("err = %v, want expired", err)
	}
}

func TestJWTWrongSecret(t *testing.T) {
	token, _, err := NewJWTService("secret-a").Issue("user-42", time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := NewJWTService("secret-b").Parse(token); !errors.Is(err, ErrJWTInvalid) {
		t.Fatalf("err = %v, want invalid", err)
	}
}

func TestJWTRejectsGarbage(t *testing.T) {
	svc := NewJWTService("test-secret")
	for _, bad := range []string{"", "   ", "not.a.jwt"} {
		if _, err := svc.Parse(bad); err == nil {
			t.Fatalf("Parse(%q) must fail", bad)
		}
	}
	if _, _, err := svc.Issue("", time.Hour); err == nil {
		t.Fatal("empty user must be rejected")
	}
}

func TestExtractFirstJSONObject(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{`{"a":1}`, `{"a":1}`},
		{"Sure! Here it is:\n```json\n{\"a\": {\"b\": 2}}\n```", `{"a": {"b": 2}}`},
		{`prefix {"s":"brace } in string"} suffix`, `{"s":"brace } in string"}`},
		{`{"s":"escaped \" quote"}`, `{"s":"escaped \" quote"}`},
		{"no json here", ""},
		{`{"unterminated":`, ""},
	}
	for _, tc := range cases {
		if got := extractFirstJSONObject(tc.in); got != tc.want {
			t.Fatalf("extractFirstJSONObject(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
