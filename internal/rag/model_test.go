package rag

import (
	"errors"
	"testing"
)

func TestMatchLabel(t *testing.T) {
	t.Parallel()

	allowed := []string{"vectorstore", "web_search"}

	tests := []struct {
		name    string
		text    string
		want    string
		wantErr bool
	}{
		{"exact match", "vectorstore", "vectorstore", false},
		{"uppercase", "VECTORSTORE", "vectorstore", false},
		{"surrounding whitespace", "  web_search\n", "web_search", false},
		{"quoted", `"web_search"`, "web_search", false},
		{"trailing period", "vectorstore.", "vectorstore", false},
		{"code fenced", "```\nvectorstore\n```", "vectorstore", false},
		{"label inside sentence", "I would route this to the vectorstore because...", "vectorstore", false},
		{"no label at all", "neither of those", "", true},
		{"empty response", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := matchLabel(tt.text, allowed)
			if tt.wantErr {
				if !errors.Is(err, ErrUnexpectedLabel) {
					t.Fatalf("matchLabel(%q) err = %v, want ErrUnexpectedLabel", tt.text, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("matchLabel(%q) err = %v", tt.text, err)
			}
			if got != tt.want {
				t.Errorf("matchLabel(%q) = %q, want %q", tt.text, got, tt.want)
			}
		})
	}
}

func TestStripCodeFences(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"plain", "plain"},
		{"```\nyes\n```", "yes"},
		{"```json\nyes\n```", "yes"},
		{"  ```\nno\n```  ", "no"},
	}
	for _, tt := range tests {
		if got := stripCodeFences(tt.in); got != tt.want {
			t.Errorf("stripCodeFences(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
