// Package attribution is the inbound half of the tracking pipeline. It
// resolves pixel and redirect hits back to the send that produced them,
// separates first from repeat events per (send, source IP), keeps the
// campaign and subscriber counters current, and tags clicks whose
// destination matches a conversion keyword bucket.
//
// Resolution failures are typed (domain.TrackingResolutionError) so the
// HTTP layer can swallow them: a recipient opening an old email must get
// a pixel or a redirect no matter what state the database is in.
// Counter updates are decoupled the same way: an aggregate that cannot
// be bumped is logged for reconciliation, never surfaced to the caller.
package attribution
