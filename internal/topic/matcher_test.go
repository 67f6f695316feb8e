package topic

import "testing"

func TestCompile(t *testing.T) {
	t.Run("rejects empty pattern", func(t *testing.T) {
		if _, err := Compile(""); err == nil {
			t.Error("expected error for empty pattern")
		}
	})

	t.Run("rejects empty segment", func(t *testing.T) {
		if _, err := Compile("user..login"); err == nil {
			t.Error("expected error for empty segment")
		}
	})

	t.Run("rejects mid-pattern multi wildcard", func(t *testing.T) {
		if _, err := Compile("user.**.login"); err == nil {
			t.Error("expected error for non-trailing **")
		}
	})

	t.Run("accepts trailing multi wildcard", func(t *testing.T) {
		p, err := Compile("user.**")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if p.IsLiteral() {
			t.Error("expected non-literal pattern")
		}
	})

	t.Run("literal detection", func(t *testing.T) {
		p, err := Compile("user.login")
		if err != nil {
			t.Fatal(err)
		}
		if !p.IsLiteral() {
			t.Error("expected literal pattern")
		}
	})
}

func TestMatch(t *testing.T) {
	tests := []struct {
		pattern string
		topic   string
		want    bool
	}{
		{"user.login", "user.login", true},
		{"user.login", "user.logout", false},
		{"user.*", "user.login", true},
		{"user.*", "user.login.extra", false},
		{"*.error", "system.error", true},
		{"*.error", "network.error", true},
		{"*.error", "error", false},
		{"payments.**", "payments.us.created", true},
		{"payments.**", "payments.created", true},
		{"payments.**", "payments", false}, // ** requires >=1 remaining segment
		{"a.b.c", "a.b", false},
		{"a.b", "a.b.c", false},
	}

	for _, tt := range tests {
		p, err := Compile(tt.pattern)
		if err != nil {
			t.Fatalf("compile(%q): %v", tt.pattern, err)
		}
		if got := p.Match(tt.topic); got != tt.want {
			t.Errorf("Match(%q, %q) = %v, want %v", tt.pattern, tt.topic, got, tt.want)
		}
	}
}
