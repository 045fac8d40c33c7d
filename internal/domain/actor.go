package domain

// Actor is the authenticated caller of an operation. It is built per request
// by the auth middleware and passed explicitly into every service call.
type Actor struct {
	UserID string
	Email  string
	Admin  bool
}

// CanActFor reports whether the actor may read or mutate data owned by userID.
func (a Actor) CanActFor(userID string) bool {
	return a.Admin || (a.UserID != "" && a.UserID == userID)
}
