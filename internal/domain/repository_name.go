package domain

import (
	"regexp"
	"strconv"

	"github.com/distribution/reference"
)

const (
	pathComponent = `[a-z0-9]+(?:(?:\.|_|__|-+)[a-z0-9]+)*`
)

var repositoryNameRegexp = regexp.MustCompile(`^` + pathComponent + `(?:/` + pathComponent + `)*$`)

// Host is the registry host a repository name is qualified with. Port 0
// means the host is addressed without an explicit port.
type Host struct {
	Name string
	Port uint16
}

// QualifiedLength is the byte length of "hostname[:port]/" prepended to a
// repository name.
func (h Host) QualifiedLength() int {
	n := len(h.Name) + 1
	if h.Port != 0 {
		n += len(strconv.Itoa(int(h.Port))) + 1
	}
	return n
}

// RepositoryName is a validated, slash-separated repository path.
type RepositoryName struct {
	name string
}

// ParseRepositoryName checks the combined length bound first, then the
// component grammar.
func ParseRepositoryName(name string, host Host) (RepositoryName, error) {
	total := host.QualifiedLength() + len(name)
	if total > reference.NameTotalLengthMax {
		return RepositoryName{}, NewError(KindRepositoryNameInvalid,
			"qualified repository name is %d bytes, limit is %d", total, reference.NameTotalLengthMax)
	}
	if !repositoryNameRegexp.MatchString(name) {
		return RepositoryName{}, NewError(KindRepositoryNameInvalid,
			"repository name %q must match %s", name, repositoryNameRegexp.String())
	}
	return RepositoryName{name: name}, nil
}

func (n RepositoryName) String() string { return n.name }
