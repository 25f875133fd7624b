package postgres

import (
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestRemovedTagNames(t *testing.T) {
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
		{"empty previous", nil, []string{"tech"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := removedTagNames(tt.previous, tt.current)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("removedTagNames(%v, %v) = %v, want %v", tt.previous, tt.current, got, tt.want)
			}
		})
	}
}

func TestIsForeignKeyViolation(t *testing.T) {
	fkErr := &pgconn.PgError{Code: "23503"}

	if !isForeignKeyViolation(fkErr) {
		t.Error("23503 should be detected as a foreign key violation")
	}
	if !isForeignKeyViolation(fmt.Errorf("replace tags: %w", fkErr)) {
		t.Error("wrapped 23503 should be detected")
	}
	if isForeignKeyViolation(&pgconn.PgError{Code: "23505"}) {
		t.Error("unique violations must not trigger the replace retry")
	}
	if isForeignKeyViolation(errors.New("connection reset")) {
		t.Error("plain errors must not trigger the replace retry")
	}
	if isForeignKeyViolation(nil) {
		t.Error("nil error must not trigger the replace retry")
	}
}
