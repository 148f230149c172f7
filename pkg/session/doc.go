/*
Package session stores the persistent parameters of SmartScript renders in
SQLite.

A session is identified by a random id, usually carried in a cookie, and is
bound to the host it was created for. Each request that presents a valid id
extends the session's lifetime; expired sessions are removed by
DeleteExpired, which the server runs on a schedule. Parameters are plain
name/value strings scoped to one session.
*/
package session
