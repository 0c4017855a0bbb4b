package domain

// Capability is a permission resolved from the caller's platform roles.
type Capability uint8

const (
	CapabilityStaff Capability = 1 << iota
	CapabilityManager
	CapabilityAdmin
)

func (c Capability) String() string {
	switch c {
	case CapabilityStaff:
		return "staff"
	case CapabilityManager:
		return "manager"
	case CapabilityAdmin:
		return "admin"
	default:
		return "unknown"
	}
}

// Actor identifies the caller of a service operation.
type Actor struct {
	ID           string
	Name         string
	Capabilities Capability
}

// SystemActorID marks transitions initiated by the bot itself.
const SystemActorID = "system"

// SystemActor is used for automatic transitions such as the
// feedback-triggered close.
var SystemActor = Actor{ID: SystemActorID, Name: "System"}

// Can reports whether the actor holds c. Admins hold every capability.
func (a Actor) Can(c Capability) bool {
	if a.Capabilities&CapabilityAdmin != 0 {
		return true
	}
	return a.Capabilities&c != 0
}

// DisplayName falls back to the ID when no name is known.
func (a Actor) DisplayName() string {
	if a.Name != "" {
		return a.Name
	}
	return a.ID
}
