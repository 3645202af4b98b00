package access

// CanView decides whether user may watch movieID. A nil user is an
// unauthenticated caller and is always refused.
func CanView(user *User, movieID string) bool {
	if user == nil {
		return false
	}
	switch user.Role {
	case RoleAdmin:
		return true
	case RoleViewer:
		return user.Entitled(movieID)
	default:
		return false
	}
}

// CanSubmitAccessRequest decides whether a new movie-access request may be
// created given every earlier request for the same user and movie. Any
// pending entry blocks first, then any approved entry. Rejected entries never
// block.
func CanSubmitAccessRequest(history []AccessRequest) error {
	approved := false
	for _, r := range history {
		switch r.Status {
		case StatusPending:
			return ErrDuplicatePending
		case StatusApproved:
			approved = true
		case StatusRejected:
		}
	}
	if approved {
		return ErrAlreadyApproved
	}
	return nil
}

// isAdmin is the single role gate used by the admin operations.
func isAdmin(p *Principal) bool {
	if p == nil {
		return false
	}
	switch p.Role {
	case RoleAdmin:
		return true
	case RoleViewer:
		return false
	default:
		return false
	}
}
