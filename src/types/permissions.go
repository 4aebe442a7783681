package types

import "sort"

type Role string

const (
	ROLE_OWNER      Role = "owner"
	ROLE_FOREMAN    Role = "foreman"
	ROLE_JOURNEYMAN Role = "journeyman"
	ROLE_APPRENTICE Role = "apprentice"
	ROLE_OPERATOR   Role = "operator"
)

func (r Role) Valid() bool {
	_, ok := RolePermissions[r]
	return ok
}

type Permission string

const (
	PERM_MANAGE_MEMBERS        Permission = "manageMembers"
	PERM_INVITE_MEMBERS        Permission = "inviteMembers"
	PERM_EDIT_CREW             Permission = "editCrew"
	PERM_DEACTIVATE_CREW       Permission = "deactivateCrew"
	PERM_SHARE_JOBS            Permission = "shareJobs"
	PERM_RESPOND_TO_JOBS       Permission = "respondToJobs"
	PERM_SEND_MESSAGES         Permission = "sendMessages"
	PERM_MODERATE_MESSAGES     Permission = "moderateMessages"
	PERM_PUBLISH_NOTIFICATIONS Permission = "publishNotifications"
	PERM_CLEAR_NOTIFICATIONS   Permission = "clearNotifications"
	PERM_VIEW_ANALYTICS        Permission = "viewAnalytics"
)

var AllPermissions = []Permission{
	PERM_MANAGE_MEMBERS,
	PERM_INVITE_MEMBERS,
	PERM_EDIT_CREW,
	PERM_DEACTIVATE_CREW,
	PERM_SHARE_JOBS,
	PERM_RESPOND_TO_JOBS,
	PERM_SEND_MESSAGES,
	PERM_MODERATE_MESSAGES,
	PERM_PUBLISH_NOTIFICATIONS,
	PERM_CLEAR_NOTIFICATIONS,
	PERM_VIEW_ANALYTICS,
}

func (p Permission) Valid() bool {
	for _, known := range AllPermissions {
		if p == known {
			return true
		}
	}
	return false
}

type PermissionSet map[Permission]struct{}

func NewPermissionSet(perms ...Permission) PermissionSet {
	s := make(PermissionSet, len(perms))
	for _, p := range perms {
		s[p] = struct{}{}
	}
	return s
}

func (s PermissionSet) Has(p Permission) bool {
	_, ok := s[p]
	return ok
}

// Slice returns the set sorted by name.
func (s PermissionSet) Slice() []Permission {
	out := make([]Permission, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (s PermissionSet) Contains(other PermissionSet) bool {
	for p := range other {
		if !s.Has(p) {
			return false
		}
	}
	return true
}

// RolePermissions is the static role table. owner ⊇ foreman ⊇ journeyman ⊇ apprentice.
var RolePermissions = map[Role]PermissionSet{
	ROLE_OWNER: NewPermissionSet(AllPermissions...),
	ROLE_FOREMAN: NewPermissionSet(
		PERM_MANAGE_MEMBERS,
		PERM_INVITE_MEMBERS,
		PERM_EDIT_CREW,
		PERM_SHARE_JOBS,
		PERM_RESPOND_TO_JOBS,
		PERM_SEND_MESSAGES,
		PERM_MODERATE_MESSAGES,
		PERM_PUBLISH_NOTIFICATIONS,
		PERM_CLEAR_NOTIFICATIONS,
		PERM_VIEW_ANALYTICS,
	),
	ROLE_JOURNEYMAN: NewPermissionSet(
		PERM_INVITE_MEMBERS,
		PERM_SHARE_JOBS,
		PERM_RESPOND_TO_JOBS,
		PERM_SEND_MESSAGES,
		PERM_PUBLISH_NOTIFICATIONS,
	),
	ROLE_APPRENTICE: NewPermissionSet(
		PERM_RESPOND_TO_JOBS,
		PERM_SEND_MESSAGES,
	),
	ROLE_OPERATOR: NewPermissionSet(
		PERM_SHARE_JOBS,
		PERM_RESPOND_TO_JOBS,
		PERM_SEND_MESSAGES,
	),
}

type RoleInfo struct {
	Title       string
	Description string
	Icon        string
	Rank        int
}

var RoleDetails = map[Role]RoleInfo{
	ROLE_OWNER:      {Title: "Owner", Description: "Full control of the crew", Icon: "crown", Rank: 4},
	ROLE_FOREMAN:    {Title: "Foreman", Description: "Runs the crew day to day", Icon: "hard_hat", Rank: 3},
	ROLE_JOURNEYMAN: {Title: "Journeyman", Description: "Shares jobs and invites members", Icon: "bolt", Rank: 2},
	ROLE_OPERATOR:   {Title: "Operator", Description: "Shares and responds to jobs", Icon: "construction", Rank: 1},
	ROLE_APPRENTICE: {Title: "Apprentice", Description: "Learns on the job and responds to shares", Icon: "school", Rank: 0},
}

// PermissionOverrides adjust a member's role permissions. Revoke wins over Grant.
type PermissionOverrides struct {
	Grant  []Permission `json:"grant,omitempty" firestore:"grant,omitempty"`
	Revoke []Permission `json:"revoke,omitempty" firestore:"revoke,omitempty"`
}

func (o PermissionOverrides) Empty() bool {
	return len(o.Grant) == 0 && len(o.Revoke) == 0
}

// PermissionsOf derives a permission set from a role and optional overrides.
func PermissionsOf(role Role, overrides PermissionOverrides) PermissionSet {
	base := RolePermissions[role]
	out := make(PermissionSet, len(base)+len(overrides.Grant))
	for p := range base {
		out[p] = struct{}{}
	}
	for _, p := range overrides.Grant {
		out[p] = struct{}{}
	}
	for _, p := range overrides.Revoke {
		delete(out, p)
	}
	return out
}
