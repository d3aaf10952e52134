package types

import (
	"errors"
	"fmt"
	"strings"
)

// ResourceRef addresses a single live resource as "<provider>:<type>/<id>",
// for example "aws:ec2/i-0abc" or "aws:s3/logs-bucket".
type ResourceRef struct {
	Provider string `json:"provider"`
	Type     string `json:"type"`
	ID       string `json:"id"`
}

// ParseResourceRef parses the "<provider>:<type>/<id>" form
func ParseResourceRef(s string) (ResourceRef, error) {
	provider, rest, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || provider == "" {
		return ResourceRef{}, fmt.Errorf("invalid resource reference %q: expected <provider>:<type>/<id>", s)
	}
	resourceType, id, ok := strings.Cut(rest, "/")
	if !ok || resourceType == "" || id == "" {
		return ResourceRef{}, fmt.Errorf("invalid resource reference %q: expected <provider>:<type>/<id>", s)
	}
	return ResourceRef{Provider: provider, Type: resourceType, ID: id}, nil
}

// String returns the canonical form of the reference
func (r ResourceRef) String() string {
	return fmt.Sprintf("%s:%s/%s", r.Provider, r.Type, r.ID)
}

// ErrResourceNotFound is returned by providers when a referenced resource does not exist
var ErrResourceNotFound = errors.New("resource not found")
