package docsystem

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DocumentStatus is the editing-workflow state of a document.
type DocumentStatus string

const (
	StatusDraft     DocumentStatus = "draft"
	StatusReview    DocumentStatus = "review"
	StatusFinalized DocumentStatus = "finalized"
	StatusPublished DocumentStatus = "published"
	StatusAbandoned DocumentStatus = "abandoned"
)

// AllDocumentStatuses lists every document status.
var AllDocumentStatuses = []DocumentStatus{
	StatusDraft, StatusReview, StatusFinalized, StatusPublished, StatusAbandoned,
}

// IsTerminal reports whether documents in this state can no longer be edited.
func (s DocumentStatus) IsTerminal() bool {
	return s == StatusPublished || s == StatusAbandoned
}

// Version identifies a document revision.
// Minor is bumped on every content edit, Major when the document enters review.
type Version struct {
	Major int `json:"major"`
	Minor int `json:"minor"`
}

// String renders the version as "major.minor".
func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// Compare returns -1, 0 or 1 comparing major first, then minor.
func (v Version) Compare(other Version) int {
	switch {
	case v.Major < other.Major:
		return -1
	case v.Major > other.Major:
		return 1
	case v.Minor < other.Minor:
		return -1
	case v.Minor > other.Minor:
		return 1
	default:
		return 0
	}
}

// BumpMinor returns the version after a content edit.
func (v Version) BumpMinor() Version {
	return Version{Major: v.Major, Minor: v.Minor + 1}
}

// BumpMajor returns the version after the document enters review.
func (v Version) BumpMajor() Version {
	return Version{Major: v.Major + 1, Minor: 0}
}

// ParseVersion parses "major.minor" (e.g. "2.14").
func ParseVersion(s string) (Version, error) {
	majorStr, minorStr, ok := strings.Cut(strings.TrimSpace(s), ".")
	if !ok {
		return Version{}, fmt.Errorf("invalid version %q: expected major.minor", s)
	}
	major, err := strconv.Atoi(majorStr)
	if err != nil || major < 0 {
		return Version{}, fmt.Errorf("invalid major version in %q", s)
	}
	minor, err := strconv.Atoi(minorStr)
	if err != nil || minor < 0 {
		return Version{}, fmt.Errorf("invalid minor version in %q", s)
	}
	return Version{Major: major, Minor: minor}, nil
}

// Document is the shared text that reviewer agents and humans edit.
// Owned by the editing workflow; suggestion code only reads Body and Version.
type Document struct {
	ID        string         `json:"id" db:"id"`
	TenantID  string         `json:"tenant_id" db:"tenant_id"`
	Body      string         `json:"body" db:"body"`
	Version   Version        `json:"version"`
	Status    DocumentStatus `json:"status" db:"status"`
	CreatedAt time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt time.Time      `json:"updated_at" db:"updated_at"`
}
