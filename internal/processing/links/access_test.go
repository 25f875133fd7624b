package links

import "testing"

func TestCanSetCustomKey(t *testing.T) {
	if CanSetCustomKey(Anonymous()) {
		t.Error("anonymous principal should not set custom keys")
	}
	if !CanSetCustomKey(Principal{ID: "u1", Authenticated: true}) {
		t.Error("authenticated principal should set custom keys")
	}
}

func TestCanEdit(t *testing.T) {
	owner := Principal{ID: "u1", Authenticated: true}
	other := Principal{ID: "u2", Authenticated: true}

	tests := []struct {
		name      string
		principal Principal
		link      *Link
		want      bool
	}{
		{"owner edits own link", owner, &Link{Key: "k", UserID: "u1"}, true},
		{"other user cannot edit", other, &Link{Key: "k", UserID: "u1"}, false},
		{"anonymous cannot edit", Anonymous(), &Link{Key: "k", UserID: "u1"}, false},
		{"anonymous-owned link has no editors", owner, &Link{Key: "k"}, false},
		{"nil link", owner, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanEdit(tt.principal, tt.link); got != tt.want {
				t.Errorf("CanEdit = %v, want %v", got, tt.want)
			}
			if got := IsOwner(tt.principal, tt.link); got != tt.want {
				t.Errorf("IsOwner = %v, want %v", got, tt.want)
			}
		})
	}
}
