// Package checker defines the comparison boundary of the merit runtime: a
// Checker compares an observed value against a reference value and produces
// a structured Result instead of a bare boolean.
//
// The runtime only consumes this boundary. How a judgment is made (exact
// equality, substring containment, or a remote model acting as judge) is a
// property of the individual Checker implementation.
//
// Attribution of a Result to the test that produced it is explicit: callers
// pass an Attribution (usually obtained from the active test context) rather
// than relying on any form of call-stack inspection.
package checker
