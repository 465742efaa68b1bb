// Package conversation implements the per-session turn state machine.
//
// A Manager starts Idle (no active agent, empty history). Each successful
// turn appends exactly one user and one assistant message and binds the
// session to the agent that answered. A failed turn leaves history and
// the active agent exactly as they were, so the caller can retry the same
// input. Store multiplexes managers by session id and serializes turns per
// session.
package conversation
