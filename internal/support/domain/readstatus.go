package domain

import (
	"sort"
	"strings"
)

// ReadStatus last read message id per participant type. Stored beside the
// room record as a flat "TAG:id;TAG:id" text column.
type ReadStatus map[ParticipantType]string

// DecodeReadStatus parse the stored form. Empty input yields an empty map;
// malformed segments are skipped rather than failing the whole room read.
func DecodeReadStatus(encoded string) ReadStatus {
	rs := ReadStatus{}
	for _, part := range strings.Split(encoded, ";") {
		if part == "" {
			continue
		}
		idx := strings.Index(part, ":")
		if idx <= 0 || idx == len(part)-1 {
			continue
		}
		tag := ParticipantType(part[:idx])
		switch tag {
		case ParticipantOwner, ParticipantOperator, ParticipantAssistant:
			rs[tag] = part[idx+1:]
		}
	}
	return rs
}

// Encode serialize with deterministic tag order
func (rs ReadStatus) Encode() string {
	if len(rs) == 0 {
		return ""
	}
	tags := make([]string, 0, len(rs))
	for tag := range rs {
		tags = append(tags, string(tag))
	}
	sort.Strings(tags)

	var b strings.Builder
	for i, tag := range tags {
		if i > 0 {
			b.WriteString(";")
		}
		b.WriteString(tag)
		b.WriteString(":")
		b.WriteString(rs[ParticipantType(tag)])
	}
	return b.String()
}

// Update advance the tag's cursor. Older or equal ids are no-ops, which
// makes repeated mark-read calls idempotent. Returns a fresh map; the
// receiver may be nil.
func (rs ReadStatus) Update(tag ParticipantType, messageID string) ReadStatus {
	updated := ReadStatus{}
	for t, id := range rs {
		updated[t] = id
	}
	if messageID > updated[tag] {
		updated[tag] = messageID
	}
	return updated
}

// LastRead cursor for one tag, empty string when the tag never read
func (rs ReadStatus) LastRead(tag ParticipantType) string {
	return rs[tag]
}

// MaxLastRead furthest cursor among the given tags
func (rs ReadStatus) MaxLastRead(tags ...ParticipantType) string {
	max := ""
	for _, tag := range tags {
		if id := rs[tag]; id > max {
			max = id
		}
	}
	return max
}
