// Package cas implements a client-side enforcement point for CAS
// single-sign-on: ticket validation against a CAS server, cookie-backed
// sessions for authenticated users, proxy-granting-ticket storage with
// background expiry, and single logout (front- and back-channel).
package cas
