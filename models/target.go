package models

// TargetKind tags the variant held by a Target.
type TargetKind string

const (
	TargetUser      TargetKind = "user"
	TargetRole      TargetKind = "role"
	TargetBroadcast TargetKind = "broadcast"
)

// Broadcast kinds.
const (
	BroadcastEveryone = "everyone"
	BroadcastHere     = "here"
)

// Target is who a channel reminder pings: a user, a role or a broadcast.
// For broadcasts ID holds the broadcast kind.
type Target struct {
	Kind TargetKind `json:"kind"`
	ID   string     `json:"id"`
}

func UserTarget(id string) *Target { return &Target{Kind: TargetUser, ID: id} }
func RoleTarget(id string) *Target { return &Target{Kind: TargetRole, ID: id} }
func BroadcastTarget(kind string) *Target { return &Target{Kind: TargetBroadcast, ID: kind} }

// Mention renders the platform mention string for the target.
func (t Target) Mention() string {
	switch t.Kind {
	case TargetRole:
		return RoleMention(t.ID)
	case TargetBroadcast:
		return "@" + t.ID
	default:
		return UserMention(t.ID)
	}
}
