// Package webhook implements the generic webhook trigger endpoint.
//
// A caller invokes {path}/invoke with GET or POST. The token is taken from the
// "token" query parameter, or the token, X-Gitlab-Token or "Authorization: Bearer"
// headers. Every enabled job whose token matches is evaluated: variables are
// resolved from the body, query parameters and headers, the job's regexp filter
// is applied, and the build is scheduled on the queue.
//
// # Configuration
//
//	webhook:
//	  listen: "127.0.0.1:8080"
//	  path: /generic-webhook-trigger
//	  max_body_size: 1MB
//
// # Request Flow
//
//  1. Body read up to max_body_size (413 on overflow)
//  2. Headers normalised, token/quiet period/dry run resolved
//  3. No matching job: 404 with an explanation of how to pass a token
//  4. Per job: variables, regexp filter, parameters, quiet period, schedule
//  5. 200 with a per-job report; a failing job does not stop the others
//
// # Other Routes
//
//	GET {path}/queue        pending builds (?job= to filter)
//	GET {path}/queue/{id}   one build
//	GET {path}/events       server-sent build events
//	GET /healthz            liveness and queue depth
//
// Sending the header "gwt-dry-run: true" evaluates jobs without scheduling.
package webhook
