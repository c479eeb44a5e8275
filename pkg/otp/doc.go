// Package otp implements the one-time passcode gate that follows an accepted
// application. Flow tracks the current Challenge by id together with every
// id it superseded, so a verification answer that arrives after a resend is
// recognised as stale and dropped. Attempts, expiry and resends are bounded
// by Policy; the expiry declared by the backend wins over the local window.
package otp
