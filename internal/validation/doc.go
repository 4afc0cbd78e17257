// Package validation is the pull-request gate for dependency fixes.
//
// A Validator runs the checks below in order against a local checkout and
// stops at the first hard failure:
//
//  1. Clean build without tests, retried a fixed number of times
//  2. Test run, judged by the failure rate and the failure signatures
//  3. Dependency analysis (best effort, warnings only)
//  4. Quality checks (best effort, warnings only)
//
// The decision to create a pull request is made by Decide from the recorded
// result and the fix's criticality.
package validation
