// Package auth issues and verifies JWT bearer tokens and decides, per
// request, whether a verified token is still admitted.
//
// Admission:
//   - AdmissionGate runs after signature verification. It accepts a token only
//     when its principal carries claims and a security stamp, the subject
//     resolves to a stored user, that user is active and the stamp still
//     matches the stored one. A successful admission records the login time.
//   - Rejections are go-errors values in the auth category and surface as a
//     401 challenge. A subject that no longer resolves is treated as a
//     consistency anomaly, store failures stay internal errors.
//
// Security stamps:
//   - Every user owns a random stamp that is embedded in issued tokens.
//     Changing the password or calling RotateSecurityStamp replaces it, which
//     revokes every token issued before.
//
// Activity sinks:
//   - ActivitySink receives one event per admission and sign in outcome.
//     AdmissionMetrics turns them into prometheus series and
//     LoggingActivitySink writes them to the configured Logger. Sinks run best
//     effort, a failing sink never changes the admission decision.
package auth
