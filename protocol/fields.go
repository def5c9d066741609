package protocol

import (
	"bytes"
	"fmt"
)

// field type tags used in ErrorResponse and NoticeResponse messages.
// see: https://www.postgresql.org/docs/current/protocol-error-fields.html
const (
	fieldSeverity            = 'S'
	fieldSeverityUnlocalized = 'V'
	fieldCode                = 'C'
	fieldMessage             = 'M'
	fieldDetail              = 'D'
	fieldHint                = 'H'
	fieldPosition            = 'P'
	fieldWhere               = 'W'
	fieldSchema              = 's'
	fieldTable               = 't'
	fieldColumn              = 'c'
	fieldFile                = 'F'
	fieldLine                = 'L'
	fieldRoutine             = 'R'
)

// Fields holds the decoded field list of an ErrorResponse or NoticeResponse.
type Fields struct {
	Severity string
	Code     string
	Message  string
	Detail   string
	Hint     string
	Position string
	Where    string
	Schema   string
	Table    string
	Column   string
	File     string
	Line     string
	Routine  string
}

// ParseFields decodes the payload of an ErrorResponse or NoticeResponse: a
// sequence of (single-byte field tag, NULL-terminated string) pairs, running
// until the payload is exhausted. A single terminating zero byte after the
// last pair is allowed, matching what backends actually send.
//
// Severity, code and message are mandatory; when any of them is missing the
// parse fails and no partial result is returned. Severity is taken from the
// non-localized 'V' field, falling back to 'S' for backends older than 9.6
// that only send the localized form.
func ParseFields(payload []byte) (*Fields, error) {
	var f Fields
	var severity, severityUnlocalized string

	buff := payload
	for len(buff) > 0 {
		tag := buff[0]
		if tag == 0 {
			break // list terminator
		}
		buff = buff[1:]

		// the value runs until the next NULL terminator. the terminator of
		// the final field may coincide with the end of the payload.
		idx := bytes.IndexByte(buff, 0)
		end := idx
		if idx == -1 {
			end = len(buff)
		}
		value := string(buff[:end])
		if idx == -1 {
			buff = nil
		} else {
			buff = buff[idx+1:]
		}

		switch tag {
		case fieldSeverity:
			severity = value
		case fieldSeverityUnlocalized:
			severityUnlocalized = value
		case fieldCode:
			f.Code = value
		case fieldMessage:
			f.Message = value
		case fieldDetail:
			f.Detail = value
		case fieldHint:
			f.Hint = value
		case fieldPosition:
			f.Position = value
		case fieldWhere:
			f.Where = value
		case fieldSchema:
			f.Schema = value
		case fieldTable:
			f.Table = value
		case fieldColumn:
			f.Column = value
		case fieldFile:
			f.File = value
		case fieldLine:
			f.Line = value
		case fieldRoutine:
			f.Routine = value
		default:
			// unrecognized field types are ignored for forward compatibility
		}
	}

	f.Severity = severityUnlocalized
	if f.Severity == "" {
		f.Severity = severity
	}

	switch {
	case f.Severity == "":
		return nil, fmt.Errorf("protocol: error field list missing severity")
	case f.Code == "":
		return nil, fmt.Errorf("protocol: error field list missing code")
	case f.Message == "":
		return nil, fmt.Errorf("protocol: error field list missing message")
	}

	return &f, nil
}
