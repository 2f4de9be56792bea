// Package relay forwards operator commands to live device sessions.
//
// Delivery is fire-and-forget: a nil return means the command was handed to
// the device's transport, not that the device acted on it. Responses, if any,
// arrive later through the event broadcaster with no per-command correlation.
//
// The relay distinguishes two failure modes the operator handles differently:
// an identity with no registry record (never connected, or already cleaned
// up) and a registry record whose transport turns out to be dead. The latter
// triggers lazy cleanup, so the registry converges on reality as commands are
// attempted.
package relay
