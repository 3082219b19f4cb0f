// Package normalize turns raw listing text into typed event fields.
//
// Every function here is pure and total: unparseable input yields a zero or
// "not found" result, never an error or a panic. Locale-sensitive functions
// take a BCP 47 style locale ("de-DE", "en_GB") and only look at its language
// part.
package normalize
