// Package hilink implements the Huawei HiLink XML-over-HTTP API used to
// control consumer LTE modems (E5573, E8372, B311 and friends).
//
// The client owns the vendor session handshake: it fetches a session cookie
// and verification token, performs the hashed password_type-4 login, rotates
// tokens from response headers, and retries once after the session-expired
// error codes. Reboot, connection status, and device information cover what
// the recovery path needs.
//
// Every failure is tagged as a modem control error so the watchdog loop can
// classify it without inspecting vendor codes.
package hilink
