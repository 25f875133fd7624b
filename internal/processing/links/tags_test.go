package links

import (
	"reflect"
	"testing"
)

func TestNormalizeTagText(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
		ok   bool
	}{
		{"empty", "", "", false},
		{"single space", " ", "", false},
		{"simple word", "golang", "golang", true},
		{"uppercase lowered", "GoLang", "golang", true},
		{"space becomes dash", "tag name", "tag-name", true},
		{"multiple spaces between words", "two  spaces  between  words", "two-spaces-between-words", true},
		{"surrounding dashes trimmed", "-tag-name-", "tag-name", true},
		{"dash runs collapse", "tag--name", "tag-name", true},
		{"punctuation rejected", "Hello!", "", false},
		{"caret rejected", "4^2", "", false},
		{"underscore rejected", "tag_name_", "", false},
		{"digits allowed", "top 10", "top-10", true},
		{"only dashes", "---", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := NormalizeTagText(tt.raw)
			if ok != tt.ok {
				t.Fatalf("NormalizeTagText(%q) ok = %v, want %v", tt.raw, ok, tt.ok)
			}
			if got != tt.want {
				t.Errorf("NormalizeTagText(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestNormalizeTagList(t *testing.T) {
	tests := []struct {
		name string
		raw  []string
		want []string
	}{
		{"nil input", nil, []string{}},
		{"invalid entries dropped silently", []string{"good", "bad!", "also good"}, []string{"good", "also-good"}},
		{"duplicates collapse after normalization", []string{"Tag Name", "tag-name", "TAG  NAME"}, []string{"tag-name"}},
		{"order preserved", []string{"zebra", "alpha"}, []string{"zebra", "alpha"}},
		{"all invalid", []string{"!", "?", " "}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeTagList(tt.raw)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("NormalizeTagList(%v) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestParseTagCSV(t *testing.T) {
	tests := []struct {
		raw  string
		want []string
	}{
		{"a,b,c", []string{"a", "b", "c"}},
		{" a , b ", []string{"a", "b"}},
		{",,", []string{}},
		{"", []string{}},
		{"one", []string{"one"}},
	}

	for _, tt := range tests {
		got := ParseTagCSV(tt.raw)
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("ParseTagCSV(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}
