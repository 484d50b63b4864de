// Package chat is the client core of voicechat.
//
// A Store holds the ordered conversations of the current session and is the
// only owner of them while the process runs. When a user is signed in, a
// Bridge mirrors every mutation to a Remote replica and replaces the local
// collection whenever the replica reports a change. The Controller switches
// between anonymous and signed-in operation as the identity provider reports
// users, and the Pipeline turns user input into one relay exchange whose
// result is appended to the active conversation.
//
// All Store mutations are serialized by one mutex. Remote writes happen on a
// single background worker in the order they were scheduled, and the remote
// copy is last-write-wins: concurrent edits from two devices are not merged.
package chat
