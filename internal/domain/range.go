package domain

import (
	"regexp"
	"strconv"
	"strings"
)

var byteRangeRegexp = regexp.MustCompile(`^[0-9]+-[0-9]+$`)

// ByteRange is an inclusive byte range.
type ByteRange struct {
	Start int64
	End   int64
}

// RangeForLength returns the range covering length bytes received so far.
// An empty buffer is reported as 0-0.
func RangeForLength(length int64) ByteRange {
	if length <= 0 {
		return ByteRange{}
	}
	return ByteRange{Start: 0, End: length - 1}
}

// ParseByteRange parses "start-end". A "bytes=" prefix is tolerated.
func ParseByteRange(input string) (ByteRange, error) {
	value := strings.TrimPrefix(input, "bytes=")
	if !byteRangeRegexp.MatchString(value) {
		return ByteRange{}, NewError(KindSizeInvalid, "range %q must match %s", input, byteRangeRegexp.String())
	}

	startStr, endStr, _ := strings.Cut(value, "-")
	start, err := strconv.ParseInt(startStr, 10, 64)
	if err != nil {
		return ByteRange{}, NewError(KindSizeInvalid, "range start %q is out of bounds", startStr)
	}
	end, err := strconv.ParseInt(endStr, 10, 64)
	if err != nil {
		return ByteRange{}, NewError(KindSizeInvalid, "range end %q is out of bounds", endStr)
	}
	if start > end {
		return ByteRange{}, NewError(KindSizeInvalid, "range start %d is after end %d", start, end)
	}

	return ByteRange{Start: start, End: end}, nil
}

// Length is the number of bytes the range spans.
func (r ByteRange) Length() int64 {
	return r.End - r.Start + 1
}

func (r ByteRange) String() string {
	return strconv.FormatInt(r.Start, 10) + "-" + strconv.FormatInt(r.End, 10)
}
