package anchor

import (
	"errors"
	"strings"
	"testing"

	"redline/internal/config"
)

func intPtr(i int) *int { return &i }

func newTestResolver() *Resolver {
	return NewResolver(config.DefaultEngine())
}

func TestResolve(t *testing.T) {
	r := newTestResolver()

	tests := []struct {
		name      string
		body      string
		text      string
		hint      *int
		wantStart int
		wantErr   error
	}{
		{
			name:      "single occurrence without hint",
			body:      "A quick brown fox.",
			text:      "brown",
			wantStart: 8,
		},
		{
			name:      "single occurrence with far hint",
			body:      "A quick brown fox.",
			text:      "brown",
			hint:      intPtr(0),
			wantStart: 8,
		},
		{
			name:      "case sensitive first match",
			body:      "The the quick brown fox.",
			text:      "the",
			hint:      intPtr(-1),
			wantStart: 4,
		},
		{
			name:      "hint past end treated as absent",
			body:      "one two one",
			text:      "one",
			hint:      intPtr(500),
			wantStart: 0,
		},
		{
			name:      "nearest occurrence to hint",
			body:      "ab ab ab ab",
			text:      "ab",
			hint:      intPtr(7),
			wantStart: 6,
		},
		{
			name:      "equidistant occurrences prefer first",
			body:      "xx..xx",
			text:      "xx",
			hint:      intPtr(2),
			wantStart: 0,
		},
		{
			name:      "multibyte offsets are characters",
			body:      "héllo wörld",
			text:      "wörld",
			wantStart: 6,
		},
		{
			name:    "missing text",
			body:    "A quick brown fox.",
			text:    "wolf",
			wantErr: ErrAnchorNotFound,
		},
		{
			name:    "empty text",
			body:    "anything",
			text:    "",
			wantErr: ErrRangeInvalid,
		},
		{
			name:    "text longer than body",
			body:    "ab",
			text:    "abc",
			hint:    intPtr(0),
			wantErr: ErrAnchorNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Resolve(tt.body, tt.text, tt.hint)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Start != tt.wantStart {
				t.Errorf("expected start %d, got %d", tt.wantStart, got.Start)
			}
			if got.End != tt.wantStart+Len(tt.text) {
				t.Errorf("expected end %d, got %d", tt.wantStart+Len(tt.text), got.End)
			}
			if s := Slice(tt.body, got.Start, got.End); s != tt.text {
				t.Errorf("body[%d:%d] = %q, want %q", got.Start, got.End, s, tt.text)
			}
		})
	}
}

func TestResolve_UniqueTextAnyHint(t *testing.T) {
	r := newTestResolver()
	body := strings.Repeat("lorem ipsum ", 20) + "needle" + strings.Repeat(" dolor sit", 20)

	for _, h := range []int{-5, 0, 3, 100, 240, 250, 400, 10_000} {
		got, err := r.Resolve(body, "needle", intPtr(h))
		if err != nil {
			t.Fatalf("hint %d: unexpected error: %v", h, err)
		}
		if s := Slice(body, got.Start, got.End); s != "needle" {
			t.Errorf("hint %d: resolved to %q", h, s)
		}
	}
}

func TestResolve_RepeatedPhraseUsesHint(t *testing.T) {
	r := newTestResolver()
	body := "Its a nice day. Its a nice day."
	second := strings.LastIndex(body, "Its")

	for i := 0; i < 2; i++ {
		got, err := r.Resolve(body, "Its", intPtr(18))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.Start != second {
			t.Errorf("expected second occurrence at %d, got %d", second, got.Start)
		}
		if got.Start == 0 {
			t.Error("resolved to first occurrence")
		}
	}
}

func TestResolve_FallsBackOutsideWindow(t *testing.T) {
	r := newTestResolver()
	body := "target" + strings.Repeat(".", 200) + "target" + strings.Repeat(".", 200)

	// Hint sits in the dots after the second occurrence but beyond the window.
	got, err := r.Resolve(body, "target", intPtr(380))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Start != 206 {
		t.Errorf("expected nearest occurrence 206, got %d", got.Start)
	}
}

func TestAnchor_Context(t *testing.T) {
	r := newTestResolver()
	body := strings.Repeat("a", 40) + "TARGET" + strings.Repeat("b", 40)

	a, err := r.Anchor(body, "TARGET", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Start != 40 || a.End != 46 {
		t.Errorf("expected [40,46), got %s", FormatRange(a.Range))
	}
	if a.ContextBefore != strings.Repeat("a", 30) {
		t.Errorf("unexpected contextBefore %q", a.ContextBefore)
	}
	if a.ContextAfter != strings.Repeat("b", 30) {
		t.Errorf("unexpected contextAfter %q", a.ContextAfter)
	}
	if a.ContextHash != ContextHash(a.ContextBefore, "TARGET", a.ContextAfter) {
		t.Error("context hash does not cover before+text+after")
	}
	if len(a.ContextHash) != 16 {
		t.Errorf("expected 16 hex chars, got %q", a.ContextHash)
	}
}

func TestAnchor_ContextClippedToBounds(t *testing.T) {
	r := newTestResolver()

	a, err := r.Anchor("Hi there", "Hi", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.ContextBefore != "" {
		t.Errorf("expected empty contextBefore, got %q", a.ContextBefore)
	}
	if a.ContextAfter != " there" {
		t.Errorf("expected clipped contextAfter, got %q", a.ContextAfter)
	}
}

func TestContextHash_Drift(t *testing.T) {
	if ContextHash("a ", "cat", " sat") == ContextHash("a ", "cat", " sits") {
		t.Error("expected different hashes for different neighborhoods")
	}
}

func TestVerify(t *testing.T) {
	body := []rune("hello world")

	tests := []struct {
		name    string
		text    string
		rng     Range
		wantErr error
	}{
		{"exact", "world", Range{6, 11}, nil},
		{"empty range", "", Range{3, 3}, ErrRangeInvalid},
		{"negative start", "he", Range{-1, 1}, ErrRangeInvalid},
		{"past end", "world!", Range{6, 12}, ErrRangeInvalid},
		{"off by one", "world", Range{5, 10}, ErrTextMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Verify(body, []rune(tt.text), tt.rng)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}
