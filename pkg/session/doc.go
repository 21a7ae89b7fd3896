/*
Package session orchestrates concurrent access to conversation transcripts.

It serializes access per session with reference-counted local locks and,
when configured, a distributed locker, so multiple replicas can share one
conversation store without interleaving writes.
*/
package session
