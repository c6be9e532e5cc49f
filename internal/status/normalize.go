package status

import (
	"regexp"
	"strings"
)

var (
	numericSegment  = regexp.MustCompile(`^[0-9]+$`)
	objectIDSegment = regexp.MustCompile(`^[0-9a-fA-F]{24}$`)
	uuidSegment     = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)
)

// Normalize collapses dynamic path segments so that calls to the same route share
// one key: numeric and 24-hex ids become ":id", UUIDs become ":uuid". Query string
// and fragment are dropped. Normalize(Normalize(p)) == Normalize(p).
func Normalize(rawPath string) string {
	p := rawPath
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	segments := strings.Split(p, "/")
	for i, seg := range segments {
		switch {
		case seg == "":
		case numericSegment.MatchString(seg):
			segments[i] = ":id"
		case objectIDSegment.MatchString(seg):
			segments[i] = ":id"
		case uuidSegment.MatchString(seg):
			segments[i] = ":uuid"
		}
	}
	return strings.Join(segments, "/")
}

// EndpointKey is the grouping key "METHOD:/normalized/path" of an API status record.
func EndpointKey(method, url string) string {
	return strings.ToUpper(method) + ":" + Normalize(url)
}
