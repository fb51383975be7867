// Package session holds the conversation context shared by the agent loop,
// the provider adapter and the tool registry for a single run.
//
// A Session is constructed once per invocation and passed by reference; it is
// never written to disk.
package session
