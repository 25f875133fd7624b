package mongo

import (
	"reflect"
	"testing"
)

func TestRemovedSlugs(t *testing.T) {
	tests := []struct {
		name     string
		previous []string
		current  []string
		want     []string
	}{
		{"last tag removed", []string{"news"}, []string{}, []string{"news"}},
		{"partial removal", []string{"news", "tech", "golang"}, []string{"tech"}, []string{"news", "golang"}},
		{"no change", []string{"news", "tech"}, []string{"news", "tech"}, nil},
		{"only additions", []string{"news"}, []string{"news", "tech"}, nil},
		{"swap", []string{"news"}, []string{"tech"}, []string{"news"}},
		{"empty previous", nil, []string{"tech"}, nil},
		{"both empty", nil, nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := removedSlugs(tt.previous, tt.current)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("removedSlugs(%v, %v) = %v, want %v", tt.previous, tt.current, got, tt.want)
			}
		})
	}
}
