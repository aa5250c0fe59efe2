// Package selector ranks the outbound SMTP relay pool and picks the next
// server for a send.
//
// Each server carries an operator-assigned priority plus rolling success-rate
// and response-time tallies updated after every transport attempt. Scores are
// recomputed from those tallies on every pick, so a server that starts
// failing sinks in the ranking within the same dispatch run.
package selector
