// Package compose turns a campaign template into per-recipient content.
//
// Personalization runs in a fixed order: spintax expansion (each field its own
// independent draw), literal token substitution from the subscriber profile,
// time-of-day greeting, recipient-local time, and industry lookup. The
// transform is pure over its inputs; only the injected random source and clock
// vary output.
package compose
