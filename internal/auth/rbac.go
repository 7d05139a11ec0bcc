package auth

import "strings"

type Role string

const (
	RoleAdmin       Role = "admin"
	RoleOrganizer   Role = "organizer"
	RoleParticipant Role = "participant"
)

func NormalizeRole(role string) Role {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case string(RoleAdmin):
		return RoleAdmin
	case string(RoleOrganizer):
		return RoleOrganizer
	case string(RoleParticipant):
		return RoleParticipant
	default:
		return RoleParticipant
	}
}

func HasRole(role Role, allowed ...Role) bool {
	if len(allowed) == 0 {
		return false
	}
	for _, candidate := range allowed {
		if role == candidate {
			return true
		}
	}
	return false
}

func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// CanManage reports whether the principal may author events at all.
// Per-event ownership is checked by the lifecycle service.
func (p Principal) CanManage() bool {
	return p.Role == RoleAdmin || p.Role == RoleOrganizer
}
