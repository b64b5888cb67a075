package trigger

import (
	"strconv"
	"strings"
)

// Recognised request parameter and header names.
const (
	ParamToken       = "token"
	ParamQuietPeriod = "jobQuietPeriod"

	HeaderToken       = "token"
	HeaderGitLabToken = "x-gitlab-token"
	HeaderAuth        = "authorization"
	HeaderQuietPeriod = "jobquietperiod"
	HeaderDryRun      = "gwt-dry-run"

	bearerPrefix = "Bearer "
)

// NoQuietPeriod is returned when the request carries no usable quiet period.
const NoQuietPeriod = -1

// Params holds raw query/form parameters. Names are case-sensitive.
type Params map[string][]string

func (p Params) first(name string) (string, bool) {
	values := p[name]
	if len(values) == 0 {
		return "", false
	}
	return values[0], true
}

// Context is what a single inbound request asks for, independent of any job.
type Context struct {
	Token       string
	HasToken    bool
	QuietPeriod int
	DryRun      bool
}

// Resolve builds the trigger Context for a request.
func Resolve(headers Headers, params Params) Context {
	token, ok := ResolveToken(headers, params)
	return Context{
		Token:       token,
		HasToken:    ok,
		QuietPeriod: ResolveQuietPeriod(headers, params),
		DryRun:      IsDryRun(headers),
	}
}

// ResolveToken returns the caller-supplied token. The first source that has a
// value wins; only the first value of each source is consulted.
func ResolveToken(headers Headers, params Params) (string, bool) {
	if token, ok := params.first(ParamToken); ok {
		return token, true
	}
	if token, ok := headers.First(HeaderToken); ok {
		return token, true
	}
	if token, ok := headers.First(HeaderGitLabToken); ok {
		return token, true
	}
	if auth, ok := headers.First(HeaderAuth); ok && strings.HasPrefix(auth, bearerPrefix) {
		return strings.TrimPrefix(auth, bearerPrefix), true
	}
	return "", false
}

// ResolveQuietPeriod returns the requested quiet period in seconds, or
// NoQuietPeriod. Negative values are passed through, so a literal "-1" reads
// the same as no override.
func ResolveQuietPeriod(headers Headers, params Params) int {
	raw, ok := params.first(ParamQuietPeriod)
	if !ok {
		raw, ok = headers.First(HeaderQuietPeriod)
	}
	if !ok {
		return NoQuietPeriod
	}
	seconds, err := strconv.Atoi(raw)
	if err != nil {
		return NoQuietPeriod
	}
	return seconds
}

// IsDryRun reports whether the dry-run header is exactly "true".
func IsDryRun(headers Headers) bool {
	if headers == nil {
		return false
	}
	value, ok := headers.First(HeaderDryRun)
	return ok && value == "true"
}
