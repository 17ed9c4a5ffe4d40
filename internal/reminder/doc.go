// Package reminder tracks named upcoming events and emits lead-time reminders.
//
// The Store owns every event and its fired markers. The Scheduler polls the
// Store on a fixed cadence, decides which markers are due, records them and only
// then hands the rendered messages to a Sink outside the store lock: delivery is
// at most once per marker and a failed send is never retried.
//
// Service is the facade used by the command layer.
package reminder
