package textnorm

import (
	"reflect"
	"testing"
)

func TestFold(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"lowercases", "Electricity BILL", "electricity bill"},
		{"strips accents", "Café Müller", "cafe muller"},
		{"cyrillic", "Привет Ё", "привет е"},
		{"cjk passthrough", "支付账单", "支付账单"},
		{"empty", "", ""},
		{"already folded", "plain text", "plain text"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Fold(tc.in); got != tc.want {
				t.Errorf("Fold(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestFoldConcurrent(t *testing.T) {
	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			for j := 0; j < 200; j++ {
				if got := Fold("Café"); got != "cafe" {
					t.Errorf("Fold = %q, want cafe", got)
					return
				}
			}
		}()
	}
	for i := 0; i < 8; i++ {
		<-done
	}
}

func TestTokens(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want []string
	}{
		{"words and punctuation", "Paid the bill, $142 due!", []string{"paid", "the", "bill", "142", "due"}},
		{"irregular whitespace", "  pay\t\trent\n now ", []string{"pay", "rent", "now"}},
		{"hyphenated", "hunter2-guest", []string{"hunter2", "guest"}},
		{"only separators", "—!?  ", nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Tokens(tc.in)
			if len(got) == 0 && len(tc.want) == 0 {
				return
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("Tokens(%q) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}

func TestCollapseSpace(t *testing.T) {
	if got := CollapseSpace("  pay \t rent\nnow  "); got != "pay rent now" {
		t.Errorf("CollapseSpace = %q", got)
	}
}

func TestExcerpt(t *testing.T) {
	text := "one two three four five six seven eight nine ten eleven twelve"

	t.Run("centers on match", func(t *testing.T) {
		got := Excerpt(text, 2, func(w string) bool { return w == "seven" })
		want := "…five six seven eight nine…"
		if got != want {
			t.Errorf("Excerpt = %q, want %q", got, want)
		}
	})

	t.Run("nil match returns head", func(t *testing.T) {
		got := Excerpt(text, 2, nil)
		want := "one two three…"
		if got != want {
			t.Errorf("Excerpt = %q, want %q", got, want)
		}
	})

	t.Run("short text has no ellipses", func(t *testing.T) {
		got := Excerpt("just three words", 5, nil)
		if got != "just three words" {
			t.Errorf("Excerpt = %q", got)
		}
	})

	t.Run("empty", func(t *testing.T) {
		if got := Excerpt("", 5, nil); got != "" {
			t.Errorf("Excerpt = %q, want empty", got)
		}
	})
}
