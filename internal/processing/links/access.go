package links

// Capability checks. Pure functions of (principal, resource); route guards
// and the Service both consult these so the rules live in one place.

// CanSetCustomKey reports whether the principal may choose its own key.
func CanSetCustomKey(p Principal) bool { return p.Authenticated }

// CanSetTitle reports whether the principal may set a display title.
func CanSetTitle(p Principal) bool { return p.Authenticated }

// CanEdit reports whether the principal may edit the link. Anonymous-owned
// links cannot be edited by anyone.
func CanEdit(p Principal, link *Link) bool {
	if !p.Authenticated || link == nil || !link.Owned() {
		return false
	}
	return p.ID == link.UserID
}

// IsOwner reports whether the principal owns the link with the given key.
// Used as a route guard before any form processing happens.
func IsOwner(p Principal, link *Link) bool {
	return CanEdit(p, link)
}
