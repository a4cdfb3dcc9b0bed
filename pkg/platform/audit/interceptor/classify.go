package interceptor

import (
	"net/http"
	"strconv"
	"strings"

	audit "fintrail/pkg/platform/audit"
)

// ClassifyAction maps a request to an audit action. Read-only and unknown
// verbs map to READ; a READ on a path mentioning login or logout becomes
// LOGIN or LOGOUT.
func ClassifyAction(method, path string) audit.Action {
	switch strings.ToUpper(method) {
	case http.MethodPost:
		return audit.ActionCreate
	case http.MethodPut, http.MethodPatch:
		return audit.ActionUpdate
	case http.MethodDelete:
		return audit.ActionDelete
	}

	lower := strings.ToLower(path)
	switch {
	case strings.Contains(lower, "logout"):
		return audit.ActionLogout
	case strings.Contains(lower, "login"):
		return audit.ActionLogin
	}
	return audit.ActionRead
}

// segmentResources maps a path segment to the resource type it names.
var segmentResources = map[string]string{
	"users":        audit.ResourceUser,
	"transactions": audit.ResourceTransaction,
	"consents":     audit.ResourceConsent,
	"data-subject": audit.ResourceDataSubject,
	"compliance":   audit.ResourceCompliance,
}

// InferResource derives (resource type, id) from path segments. It is the
// fallback for requests that did not match a declared route, such as 404s.
// A known segment followed by a numeric segment yields that number as id.
func InferResource(path string) (string, *int64) {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	for i, seg := range segments {
		resourceType, ok := segmentResources[seg]
		if !ok {
			continue
		}
		if i+1 < len(segments) {
			if n, err := strconv.ParseInt(segments[i+1], 10, 64); err == nil && n > 0 {
				return resourceType, &n
			}
		}
		return resourceType, nil
	}
	return audit.ResourceUnknown, nil
}

// isExcluded reports whether path equals an excluded path or sits below one.
func isExcluded(path string, excluded []string) bool {
	for _, p := range excluded {
		if p == "" {
			continue
		}
		if path == p || strings.HasPrefix(path, strings.TrimSuffix(p, "/")+"/") {
			return true
		}
	}
	return false
}
