// Package prompt runs a wizard in the terminal using survey prompts.
package prompt
