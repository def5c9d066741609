package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// FieldDescription describes a single column of an incoming row set, as
// delivered inside a RowDescription message.
type FieldDescription struct {
	Name         string
	TableOID     uint32
	AttrNum      uint16
	TypeOID      uint32
	TypeSize     int16
	TypeModifier int32
	Format       int16
}

// RowDescriptionData is the decoded form of a RowDescription message: the
// ordered schema (column names/types) of the DataRow messages about to be
// transmitted.
type RowDescriptionData struct {
	Fields []FieldDescription
}

// Names returns the ordered column names.
func (rd *RowDescriptionData) Names() []string {
	names := make([]string, len(rd.Fields))
	for i := range rd.Fields {
		names[i] = rd.Fields[i].Name
	}
	return names
}

// ParseRowDescription decodes the payload of a RowDescription ('T') message.
func ParseRowDescription(payload []byte) (*RowDescriptionData, error) {
	if len(payload) < 2 {
		return nil, fmt.Errorf("protocol: row description too short: %d bytes", len(payload))
	}

	count := int(binary.BigEndian.Uint16(payload))
	buff := payload[2:]

	rd := &RowDescriptionData{Fields: make([]FieldDescription, 0, count)}
	for i := 0; i < count; i++ {
		idx := bytes.IndexByte(buff, 0)
		if idx == -1 {
			return nil, fmt.Errorf("protocol: row description field %d: unterminated name", i)
		}
		name := string(buff[:idx])
		buff = buff[idx+1:]

		// table OID (4), attribute number (2), type OID (4), type size (2),
		// type modifier (4), format code (2)
		if len(buff) < 18 {
			return nil, fmt.Errorf("protocol: row description field %d: truncated metadata", i)
		}
		rd.Fields = append(rd.Fields, FieldDescription{
			Name:         name,
			TableOID:     binary.BigEndian.Uint32(buff[0:4]),
			AttrNum:      binary.BigEndian.Uint16(buff[4:6]),
			TypeOID:      binary.BigEndian.Uint32(buff[6:10]),
			TypeSize:     int16(binary.BigEndian.Uint16(buff[10:12])),
			TypeModifier: int32(binary.BigEndian.Uint32(buff[12:16])),
			Format:       int16(binary.BigEndian.Uint16(buff[16:18])),
		})
		buff = buff[18:]
	}

	return rd, nil
}

// ParseDataRow decodes the payload of a DataRow ('D') message into its raw
// column values. A NULL column is returned as a nil slice. The returned
// slices are copies and remain valid after the reassembly buffer moves.
func ParseDataRow(payload []byte) ([][]byte, error) {
	if len(payload) < 2 {
		return nil, fmt.Errorf("protocol: data row too short: %d bytes", len(payload))
	}

	count := int(binary.BigEndian.Uint16(payload))
	buff := payload[2:]

	values := make([][]byte, count)
	for i := 0; i < count; i++ {
		if len(buff) < 4 {
			return nil, fmt.Errorf("protocol: data row value %d: truncated length", i)
		}
		size := int32(binary.BigEndian.Uint32(buff))
		buff = buff[4:]

		if size == -1 {
			continue // NULL
		}
		if int(size) > len(buff) {
			return nil, fmt.Errorf("protocol: data row value %d: declared %d bytes, %d available", i, size, len(buff))
		}
		values[i] = append([]byte(nil), buff[:size]...)
		buff = buff[size:]
	}

	return values, nil
}

// ParseParameterDescription decodes the payload of a ParameterDescription
// ('t') message into the OIDs of a prepared statement's parameters.
func ParseParameterDescription(payload []byte) ([]uint32, error) {
	if len(payload) < 2 {
		return nil, fmt.Errorf("protocol: parameter description too short: %d bytes", len(payload))
	}

	count := int(binary.BigEndian.Uint16(payload))
	buff := payload[2:]
	if len(buff) < count*4 {
		return nil, fmt.Errorf("protocol: parameter description declares %d OIDs, %d bytes available", count, len(buff))
	}

	oids := make([]uint32, count)
	for i := 0; i < count; i++ {
		oids[i] = binary.BigEndian.Uint32(buff[i*4:])
	}
	return oids, nil
}

// ParseParameterStatus decodes the payload of a ParameterStatus ('S')
// message: two NULL-terminated strings holding a runtime parameter name and
// its current value.
func ParseParameterStatus(payload []byte) (name, value string, err error) {
	idx := bytes.IndexByte(payload, 0)
	if idx == -1 {
		return "", "", fmt.Errorf("protocol: parameter status: unterminated name")
	}
	name = string(payload[:idx])

	rest := payload[idx+1:]
	idx = bytes.IndexByte(rest, 0)
	if idx == -1 {
		return "", "", fmt.Errorf("protocol: parameter status: unterminated value")
	}
	value = string(rest[:idx])
	return name, value, nil
}

// ParseBackendKeyData decodes the payload of a BackendKeyData ('K') message:
// the process ID and secret key the client passes back when it wishes to
// cancel a running query.
func ParseBackendKeyData(payload []byte) (pid, secret uint32, err error) {
	if len(payload) < 8 {
		return 0, 0, fmt.Errorf("protocol: backend key data too short: %d bytes", len(payload))
	}
	return binary.BigEndian.Uint32(payload[0:4]), binary.BigEndian.Uint32(payload[4:8]), nil
}

// ParseReadyForQuery decodes the payload of a ReadyForQuery ('Z') message and
// returns the transaction status byte: 'I' when idle, 'T' inside a
// transaction block, 'E' inside a failed transaction block.
func ParseReadyForQuery(payload []byte) (byte, error) {
	if len(payload) < 1 {
		return 0, fmt.Errorf("protocol: ready for query carries no status")
	}
	return payload[0], nil
}

// ParseCommandComplete decodes the payload of a CommandComplete ('C')
// message into its command tag, e.g. "SELECT 3".
func ParseCommandComplete(payload []byte) (string, error) {
	idx := bytes.IndexByte(payload, 0)
	if idx == -1 {
		return "", fmt.Errorf("protocol: command complete: unterminated tag")
	}
	return string(payload[:idx]), nil
}

// ParseAuthentication decodes the payload of an AuthenticationRequest ('R')
// message. The salt is only present for AuthMD5Password requests.
func ParseAuthentication(payload []byte) (code uint32, salt []byte, err error) {
	if len(payload) < 4 {
		return 0, nil, fmt.Errorf("protocol: authentication request too short: %d bytes", len(payload))
	}
	code = binary.BigEndian.Uint32(payload)
	if code == AuthMD5Password {
		if len(payload) < 8 {
			return 0, nil, fmt.Errorf("protocol: md5 authentication request missing salt")
		}
		salt = append([]byte(nil), payload[4:8]...)
	}
	return code, salt, nil
}

// ParseNotification decodes the payload of a NotificationResponse ('A')
// message: the notifying backend's process ID, the channel name and the
// notification payload.
func ParseNotification(payload []byte) (pid uint32, channel, message string, err error) {
	if len(payload) < 4 {
		return 0, "", "", fmt.Errorf("protocol: notification too short: %d bytes", len(payload))
	}
	pid = binary.BigEndian.Uint32(payload)

	rest := payload[4:]
	idx := bytes.IndexByte(rest, 0)
	if idx == -1 {
		return 0, "", "", fmt.Errorf("protocol: notification: unterminated channel")
	}
	channel = string(rest[:idx])

	rest = rest[idx+1:]
	idx = bytes.IndexByte(rest, 0)
	if idx == -1 {
		return 0, "", "", fmt.Errorf("protocol: notification: unterminated payload")
	}
	message = string(rest[:idx])
	return pid, channel, message, nil
}
