// Package campaign implements campaign lifecycle management.
//
// The service layer owns creating, editing, and queueing campaigns for the
// worker pool. It depends on repository interfaces defined in this package
// and never touches the dispatch path directly; once recipients are queued,
// workers drive delivery through the dispatch engine.
//
// Repository implementations live in repository/postgres/.
package campaign
