package domain

import (
	"regexp"

	"github.com/distribution/reference"
)

var tagRegexp = regexp.MustCompile(`^` + reference.TagRegexp.String() + `$`)

// Tag is a mutable alias for a manifest.
type Tag struct {
	name string
}

// ParseTag validates input against [A-Za-z0-9_][A-Za-z0-9._-]{0,127}.
func ParseTag(input string) (Tag, error) {
	if !tagRegexp.MatchString(input) {
		return Tag{}, NewError(KindTagInvalid, "tag %q must match %s", input, tagRegexp.String())
	}
	return Tag{name: input}, nil
}

func (t Tag) String() string { return t.name }

func (Tag) isReference() {}

// Reference names a manifest either by Tag or by Digest. Only those two types
// implement it.
type Reference interface {
	String() string
	isReference()
}

// ParseReference tries the digest grammar first, then the tag grammar.
func ParseReference(input string) (Reference, error) {
	if dgst, err := ParseDigest(input); err == nil {
		return dgst, nil
	}
	if tag, err := ParseTag(input); err == nil {
		return tag, nil
	}
	return nil, NewError(KindReferenceInvalid, "reference %q must be either a digest or a tag", input)
}
