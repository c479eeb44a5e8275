// Package backend is the HTTP client for the application and passcode
// endpoints. A single Client satisfies both submission.Transport and
// otp.Backend.
package backend
