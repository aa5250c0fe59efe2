// Package dispatch drives the per-recipient delivery pipeline: validate,
// suppression check, personalize, create the send record, inject
// tracking, assemble and sign the MIME message, then hand it to the
// transport with retry and server failover.
//
// The send record is written with status pending before the first
// transport attempt, so a send the transport never acknowledged is still
// attributable. Each recipient moves through
// Pending -> Composing -> Authenticating -> Sending -> {Sent | Failed};
// only the terminal states persist.
//
// Rate shaping is deliberate: between recipients the engine sleeps a
// per-domain base delay plus random jitter so outbound traffic does not
// form bursty signatures at the large inbox providers.
package dispatch
