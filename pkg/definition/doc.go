// Package definition loads wizard definitions from JSON or YAML files, from
// the bundled product set (KYC onboarding, personal loan, credit card) or
// from the request body of an OpenAPI operation annotated with x-wizard-*
// extensions. Every definition is normalised on load so broken files are
// reported before a session starts.
package definition
