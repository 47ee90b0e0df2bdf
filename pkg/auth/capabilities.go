package auth

// Capability is a named permission checked by route middleware.
type Capability string

const (
	CapManageRooms    Capability = "manage_rooms"
	CapManagePricing  Capability = "manage_pricing"
	CapManageBookings Capability = "manage_bookings"
	CapManageCoupons  Capability = "manage_coupons"
	CapViewReports    Capability = "view_reports"
)

// hotel managers run day-to-day operations but cannot touch the coupon engine.
var roleCapabilities = map[string]map[Capability]bool{
	RoleAdmin: {
		CapManageRooms:    true,
		CapManagePricing:  true,
		CapManageBookings: true,
		CapManageCoupons:  true,
		CapViewReports:    true,
	},
	RoleHotelManager: {
		CapManageRooms:    true,
		CapManagePricing:  true,
		CapManageBookings: true,
		CapViewReports:    true,
	},
}

// Can reports whether role holds capability.
func Can(role string, capability Capability) bool {
	return roleCapabilities[role][capability]
}

// CapabilitiesOf lists the capabilities granted to role.
func CapabilitiesOf(role string) []Capability {
	var caps []Capability
	for _, c := range []Capability{CapManageRooms, CapManagePricing, CapManageBookings, CapManageCoupons, CapViewReports} {
		if Can(role, c) {
			caps = append(caps, c)
		}
	}
	return caps
}
