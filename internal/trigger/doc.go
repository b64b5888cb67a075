// Package trigger decides what an inbound generic webhook request asks for.
//
// A request is reduced to a Context (token, quiet period override and dry-run
// flag) and, for every matched job, to the ordered list of BuildParameters that
// the build queue receives.
//
// # Request Resolution
//
//  1. Headers are normalised once per request (lower-cased names, values kept in order)
//  2. The token is taken from the "token" parameter, then the "token" header,
//     then "x-gitlab-token", then an "Authorization: Bearer" header
//  3. The quiet period comes from the "jobQuietPeriod" parameter or header (-1 if absent or invalid)
//  4. Dry run is on only when the gwt-dry-run header is exactly "true"
//
// # Build Parameters
//
// BuildParameters walks a job's parameter definitions in declaration order and
// prefers a resolved variable over the definition's default. When a job declares
// no parameters and does not allow several triggers per build, a synthetic
// unique parameter is added so the queue never coalesces two triggers.
//
// Every function in this package is pure apart from the UUID generator and is
// safe to call from concurrent request handlers.
package trigger
