package object

import (
	"bytes"
	"fmt"
	"strconv"
	"time"
)

// Timestamp is a wall-clock instant with the writer's UTC offset, the
// granularity commits are recorded at.
type Timestamp struct {
	Millis          int64 `json:"millis"`
	TzOffsetMinutes int   `json:"tz_offset"`
}

func NewTimestamp(t time.Time) Timestamp {
	_, offset := t.Zone()
	return Timestamp{Millis: t.UnixMilli(), TzOffsetMinutes: offset / 60}
}

func (t Timestamp) Time() time.Time {
	loc := time.FixedZone("", t.TzOffsetMinutes*60)
	return time.UnixMilli(t.Millis).In(loc)
}

// Signature identifies who wrote or committed a change and when.
type Signature struct {
	Name  string    `json:"name"`
	Email string    `json:"email"`
	When  Timestamp `json:"when"`
}

// String formats a Signature the way it is serialized into objects:
//
//	Alice <alice@example.com> 1700000000000 +0000
func (s *Signature) String() string {
	tz := s.When.TzOffsetMinutes
	sign := '+'
	if tz < 0 {
		sign = '-'
		tz = -tz
	}
	return fmt.Sprintf("%s <%s> %d %c%02d%02d", s.Name, s.Email, s.When.Millis, sign, tz/60, tz%60)
}

// Decode parses the serialized form back into the signature. Malformed
// input leaves the affected fields zeroed rather than failing the whole
// object.
func (s *Signature) Decode(b []byte) {
	open := bytes.LastIndexByte(b, '<')
	close := bytes.LastIndexByte(b, '>')
	if open == -1 || close == -1 || close < open {
		return
	}
	s.Name = string(bytes.Trim(b[:open], " "))
	s.Email = string(b[open+1 : close])
	if close+2 >= len(b) {
		return
	}
	rest := b[close+2:]
	space := bytes.IndexByte(rest, ' ')
	if space == -1 {
		space = len(rest)
	}
	millis, err := strconv.ParseInt(string(rest[:space]), 10, 64)
	if err != nil {
		return
	}
	s.When.Millis = millis
	if space+1 >= len(rest) || len(rest[space+1:]) < 5 {
		return
	}
	tz := rest[space+1 : space+6]
	hours, err1 := strconv.Atoi(string(tz[1:3]))
	mins, err2 := strconv.Atoi(string(tz[3:5]))
	if err1 != nil || err2 != nil {
		return
	}
	offset := hours*60 + mins
	if tz[0] == '-' {
		offset = -offset
	}
	s.When.TzOffsetMinutes = offset
}
