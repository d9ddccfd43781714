// Package security is the narrow permission contract between the runtime
// and the isolation layer that hosts add-ons.
//
// Every privileged call (firing an event, producing an item, rendering)
// asks a Guard first. A Guard answers with nil, a transient
// *errors.PermissionDenied, or a permanent *errors.Forbidden:
//
//	guard := security.NewCapabilityGuard()
//	guard.Grant("clock", security.OpFire)
//	guard.Forbid("rogue", security.OpRender, "revoked by policy")
//
// CapabilityGuard is an in-memory implementation suitable for tests and
// single-process hosts. Hosts with their own policy engine implement Guard
// directly or use GuardFunc.
package security
