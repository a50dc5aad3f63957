// Package util holds small helpers shared by gridstore packages: size
// parsing and formatting for configured limits, URL redaction for logs, and
// Coalesce for defaults.
package util
