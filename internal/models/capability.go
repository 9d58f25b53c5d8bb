package models

// Capability names a single permitted action. Checks are pure functions of
// the actor's role; no per-request permission state lives in the engine.
type Capability string

const (
	CapabilityRequestCreate  Capability = "request.create"
	CapabilityRequestApprove Capability = "request.approve"
	CapabilityRequestReject  Capability = "request.reject"
	CapabilityStockDeduct    Capability = "stock.deduct"
	CapabilityStockRestock   Capability = "stock.restock"
	CapabilitySupplyManage   Capability = "supply.manage"
	CapabilityReportGenerate Capability = "report.generate"
)

var roleCapabilities = map[UserRole]map[Capability]struct{}{
	RoleSuperAdmin: capabilitySet(
		CapabilityRequestCreate, CapabilityRequestApprove, CapabilityRequestReject,
		CapabilityStockDeduct, CapabilityStockRestock,
		CapabilitySupplyManage, CapabilityReportGenerate,
	),
	RoleAdmin: capabilitySet(
		CapabilityRequestCreate, CapabilityRequestApprove, CapabilityRequestReject,
		CapabilityStockDeduct, CapabilityStockRestock,
		CapabilitySupplyManage, CapabilityReportGenerate,
	),
	RoleStaff: capabilitySet(
		CapabilityRequestCreate,
	),
}

func capabilitySet(caps ...Capability) map[Capability]struct{} {
	set := make(map[Capability]struct{}, len(caps))
	for _, c := range caps {
		set[c] = struct{}{}
	}
	return set
}

// Can reports whether the role grants the capability.
func (r UserRole) Can(c Capability) bool {
	set, ok := roleCapabilities[r]
	if !ok {
		return false
	}
	_, ok = set[c]
	return ok
}

// Can reports whether the claims' role grants the capability. Nil claims
// never grant anything.
func (c *JWTClaims) Can(capability Capability) bool {
	if c == nil {
		return false
	}
	return c.Role.Can(capability)
}
