// Package storage persists the relay's delivery log and its seen-message
// marks so restarts do not resend the same source message.
//
// Two drivers exist:
//   - "file": JSON Lines delivery log plus a snapshot/journal pair for marks
//   - "sqlite": a single SQLite database (pure Go driver)
package storage
