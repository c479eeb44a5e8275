// Package submission turns completed answers into a backend request and
// classifies the response.
package submission
