package auth

import "github.com/carrydesk/carry-desk/internal/domain"

// CapabilityResolver maps platform role IDs onto capabilities.
type CapabilityResolver struct {
	roles map[string]domain.Capability
}

// NewCapabilityResolver builds a resolver from the configured role IDs.
// Carrier roles grant the staff capability.
func NewCapabilityResolver(staff, carriers, managers, admins []string) *CapabilityResolver {
	r := &CapabilityResolver{roles: make(map[string]domain.Capability)}
	grant := func(ids []string, c domain.Capability) {
		for _, id := range ids {
			r.roles[id] |= c
		}
	}
	grant(staff, domain.CapabilityStaff)
	grant(carriers, domain.CapabilityStaff)
	grant(managers, domain.CapabilityManager|domain.CapabilityStaff)
	grant(admins, domain.CapabilityAdmin)
	return r
}

// Resolve folds the capabilities granted by roles.
func (r *CapabilityResolver) Resolve(roles []string) domain.Capability {
	var caps domain.Capability
	for _, role := range roles {
		caps |= r.roles[role]
	}
	return caps
}
