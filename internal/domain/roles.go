package domain

import (
	"fmt"
	"strings"
	"unicode"
)

// StoreRole identifies the purpose of a named cache store.
type StoreRole int

const (
	RoleStatic StoreRole = iota // application shell, pages and build assets
	RoleAPI                     // JSON API responses
	RoleMedia                   // third-party media (thumbnails, embeds)
)

// Roles lists every store role in a stable order.
var Roles = []StoreRole{RoleStatic, RoleAPI, RoleMedia}

func (r StoreRole) String() string {
	switch r {
	case RoleStatic:
		return "static"
	case RoleAPI:
		return "api"
	case RoleMedia:
		return "media"
	default:
		return fmt.Sprintf("role(%d)", int(r))
	}
}

// StoreNames maps store roles onto version-qualified store names.
//
//	static -> <prefix>-static-<version>
//	api    -> <prefix>-api-<version>
//	media  -> <prefix>-<version>
type StoreNames struct {
	Prefix  string
	Version string
}

// NewStoreNames validates prefix and version and returns the name mapping.
func NewStoreNames(prefix, version string) (StoreNames, error) {
	if err := validateNamePart("prefix", prefix); err != nil {
		return StoreNames{}, err
	}
	if err := validateNamePart("version", version); err != nil {
		return StoreNames{}, err
	}
	return StoreNames{Prefix: prefix, Version: version}, nil
}

func validateNamePart(field, value string) error {
	if value == "" {
		return fmt.Errorf("%w: %s is empty", ErrInvalidStoreName, field)
	}
	if strings.ContainsFunc(value, func(r rune) bool { return unicode.IsSpace(r) || r == '/' }) {
		return fmt.Errorf("%w: %s %q contains whitespace or '/'", ErrInvalidStoreName, field, value)
	}
	return nil
}

// Name returns the store name for a role.
func (n StoreNames) Name(role StoreRole) string {
	switch role {
	case RoleStatic:
		return n.Prefix + "-static-" + n.Version
	case RoleAPI:
		return n.Prefix + "-api-" + n.Version
	default:
		return n.Prefix + "-" + n.Version
	}
}

// AllowList returns the names of every store owned by this version.
func (n StoreNames) AllowList() []string {
	names := make([]string, 0, len(Roles))
	for _, role := range Roles {
		names = append(names, n.Name(role))
	}
	return names
}

// Allowed reports whether name belongs to this version.
func (n StoreNames) Allowed(name string) bool {
	for _, role := range Roles {
		if n.Name(role) == name {
			return true
		}
	}
	return false
}
