package dedup

import (
	"testing"

	"github.com/helixir/paper-discovery-service/internal/domain"
)

func TestNormalizeName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"simple lowercase", "John Smith", "john smith"},
		{"extra whitespace", "  John   Smith  ", "john smith"},
		{"last comma first format", "SMITH, John", "john smith"},
		{"apostrophe removed", "O'Brien", "obrien"},
		{"periods removed", "J. K. Rowling", "j k rowling"},
		{"hyphens removed", "Mary-Jane Watson", "maryjane watson"},
		{"empty string", "", ""},
		{"only whitespace", "   ", ""},
		{"comma with extra spaces", "  Smith ,  John  ", "john smith"},
		{"trailing comma", "Smith,", "smith"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := NormalizeName(tt.input); got != tt.expected {
				t.Errorf("NormalizeName(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func authors(names ...string) []domain.Author {
	out := make([]domain.Author, len(names))
	for i, n := range names {
		out[i] = domain.Author{Name: n}
	}
	return out
}

func TestAuthorOverlap(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		a, b []domain.Author
		want float64
	}{
		{
			name: "identical lists",
			a:    authors("John Smith", "Jane Doe"),
			b:    authors("John Smith", "Jane Doe"),
			want: 1.0,
		},
		{
			name: "empty list",
			a:    authors("John Smith"),
			b:    nil,
			want: 0.0,
		},
		{
			name: "different name formats same people",
			a:    authors("Smith, John", "Doe, Jane"),
			b:    authors("John Smith", "Jane Doe"),
			want: 1.0,
		},
		{
			name: "completely different people",
			a:    authors("John Smith"),
			b:    authors("Alice Jones"),
			want: 0.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := AuthorOverlap(tt.a, tt.b)
			if got != tt.want {
				t.Errorf("AuthorOverlap() = %v, want %v", got, tt.want)
			}
			// Symmetry.
			if rev := AuthorOverlap(tt.b, tt.a); rev != got {
				t.Errorf("AuthorOverlap is not symmetric: %v vs %v", got, rev)
			}
		})
	}
}

func TestAuthorOverlapInitials(t *testing.T) {
	t.Parallel()

	// "J. Smith" vs "John Smith": initial match scores 0.9, one pair,
	// union of one, overall 0.9.
	got := AuthorOverlap(authors("J. Smith"), authors("John Smith"))
	if got != 0.9 {
		t.Errorf("AuthorOverlap with initial = %v, want 0.9", got)
	}
}

func TestAuthorOverlapPartial(t *testing.T) {
	t.Parallel()

	// One shared author out of two on each side: 1.0 matched score over a
	// union of three.
	got := AuthorOverlap(
		authors("John Smith", "Jane Doe"),
		authors("John Smith", "Bob Brown"),
	)
	want := 1.0 / 3.0
	if diff := got - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("AuthorOverlap partial = %v, want %v", got, want)
	}
}
