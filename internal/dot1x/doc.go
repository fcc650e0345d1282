// Package dot1x implements an IEEE 802.1X authenticator with RADIUS EAP
// pass-through (RFC 3579). It terminates EAPOL framing on the supplicant-facing
// side, relays the EAP conversation to a RADIUS server, and notifies an
// upstream policy component of per-supplicant authentication outcomes.
//
// The package is organized the way a protocol daemon's core library usually
// is: a wire codec (Codec), two transport abstractions (EapolLink,
// RadiusLink), a deadline-ordered timer (TimerScheduler), an id allocator
// (PacketIdAllocator), a session table (SupplicantTable), the per-supplicant
// state machine (EapStateMachine, following RFC 4137 §7), and a Dispatcher
// that wires all of the above into five cooperative tasks.
package dot1x
