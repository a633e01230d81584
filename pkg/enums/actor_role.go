package enums

// ActorRole identifies the caller class carried in platform-issued tokens.
type ActorRole string

const (
	ActorRoleAdmin   ActorRole = "admin"
	ActorRoleCreator ActorRole = "creator"
)

func (r ActorRole) IsValid() bool {
	switch r {
	case ActorRoleAdmin, ActorRoleCreator:
		return true
	}
	return false
}

func (r ActorRole) String() string {
	return string(r)
}
