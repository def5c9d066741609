package pgclient

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/lib/pq/oid"
	"github.com/panoplyio/pgclient/protocol"
)

// value format codes carried in row descriptions and bind messages
const (
	formatText   = 0
	formatBinary = 1
)

// valueDecoder turns the raw bytes of a single column into a typed Go value
// according to the column's declared type OID and format code. OIDs without
// a registered decoding are surfaced as raw strings; the first time each
// such OID is seen a warning is logged, unless silenced by configuration.
type valueDecoder struct {
	silenceUnknown bool
	warned         map[uint32]bool
}

func newValueDecoder(silenceUnknown bool) *valueDecoder {
	return &valueDecoder{silenceUnknown: silenceUnknown}
}

// decode converts one raw column value. A nil raw slice is SQL NULL and
// decodes to nil regardless of type.
func (d *valueDecoder) decode(fd *protocol.FieldDescription, raw []byte) (interface{}, error) {
	if raw == nil {
		return nil, nil
	}
	if fd.Format == formatBinary {
		return d.decodeBinary(fd, raw)
	}
	return d.decodeText(fd, raw)
}

func (d *valueDecoder) decodeText(fd *protocol.FieldDescription, raw []byte) (interface{}, error) {
	s := string(raw)

	switch oid.Oid(fd.TypeOID) {
	case oid.T_bool:
		return s == "t", nil
	case oid.T_int2, oid.T_int4, oid.T_int8, oid.T_oid:
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("pgclient: column %q: bad integer %q", fd.Name, s)
		}
		return v, nil
	case oid.T_float4, oid.T_float8:
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("pgclient: column %q: bad float %q", fd.Name, s)
		}
		return v, nil
	case oid.T_bytea:
		if !strings.HasPrefix(s, `\x`) {
			return nil, fmt.Errorf("pgclient: column %q: bytea without hex prefix", fd.Name)
		}
		v, err := hex.DecodeString(s[2:])
		if err != nil {
			return nil, fmt.Errorf("pgclient: column %q: bad bytea: %v", fd.Name, err)
		}
		return v, nil
	case oid.T_text, oid.T_varchar, oid.T_bpchar, oid.T_char, oid.T_name,
		oid.T_unknown, oid.T_numeric, oid.T_date, oid.T_time, oid.T_timestamp,
		oid.T_timestamptz, oid.T_interval, oid.T_json, oid.T_jsonb, oid.T_xml,
		oid.T_uuid:
		// numeric, temporal and document types pass through as their text
		// representation; interpreting them further is the caller's call
		return s, nil
	}

	d.warnUnknown(fd)
	return s, nil
}

func (d *valueDecoder) decodeBinary(fd *protocol.FieldDescription, raw []byte) (interface{}, error) {
	switch oid.Oid(fd.TypeOID) {
	case oid.T_bool:
		if len(raw) != 1 {
			return nil, fmt.Errorf("pgclient: column %q: bool of %d bytes", fd.Name, len(raw))
		}
		return raw[0] != 0, nil
	case oid.T_int2:
		if len(raw) != 2 {
			return nil, fmt.Errorf("pgclient: column %q: int2 of %d bytes", fd.Name, len(raw))
		}
		return int64(int16(binary.BigEndian.Uint16(raw))), nil
	case oid.T_int4, oid.T_oid:
		if len(raw) != 4 {
			return nil, fmt.Errorf("pgclient: column %q: int4 of %d bytes", fd.Name, len(raw))
		}
		return int64(int32(binary.BigEndian.Uint32(raw))), nil
	case oid.T_int8:
		if len(raw) != 8 {
			return nil, fmt.Errorf("pgclient: column %q: int8 of %d bytes", fd.Name, len(raw))
		}
		return int64(binary.BigEndian.Uint64(raw)), nil
	case oid.T_float4:
		if len(raw) != 4 {
			return nil, fmt.Errorf("pgclient: column %q: float4 of %d bytes", fd.Name, len(raw))
		}
		return float64(math.Float32frombits(binary.BigEndian.Uint32(raw))), nil
	case oid.T_float8:
		if len(raw) != 8 {
			return nil, fmt.Errorf("pgclient: column %q: float8 of %d bytes", fd.Name, len(raw))
		}
		return math.Float64frombits(binary.BigEndian.Uint64(raw)), nil
	case oid.T_bytea:
		return append([]byte(nil), raw...), nil
	case oid.T_text, oid.T_varchar, oid.T_bpchar, oid.T_name:
		return string(raw), nil
	}

	d.warnUnknown(fd)
	return string(raw), nil
}

func (d *valueDecoder) warnUnknown(fd *protocol.FieldDescription) {
	if d.silenceUnknown || d.warned[fd.TypeOID] {
		return
	}
	if d.warned == nil {
		d.warned = make(map[uint32]bool)
	}
	d.warned[fd.TypeOID] = true
	Logf("pgclient: no decoding for type OID %d (column %q), returning raw string", fd.TypeOID, fd.Name)
}

// encodeParam converts one query argument to its text-format wire value.
// nil encodes SQL NULL.
func encodeParam(arg interface{}) ([]byte, error) {
	switch v := arg.(type) {
	case nil:
		return nil, nil
	case string:
		return []byte(v), nil
	case []byte:
		return []byte(`\x` + hex.EncodeToString(v)), nil
	case bool:
		if v {
			return []byte("t"), nil
		}
		return []byte("f"), nil
	case int:
		return strconv.AppendInt(nil, int64(v), 10), nil
	case int16:
		return strconv.AppendInt(nil, int64(v), 10), nil
	case int32:
		return strconv.AppendInt(nil, int64(v), 10), nil
	case int64:
		return strconv.AppendInt(nil, v, 10), nil
	case uint32:
		return strconv.AppendUint(nil, uint64(v), 10), nil
	case float32:
		return strconv.AppendFloat(nil, float64(v), 'g', -1, 32), nil
	case float64:
		return strconv.AppendFloat(nil, v, 'g', -1, 64), nil
	case fmt.Stringer:
		return []byte(v.String()), nil
	default:
		return nil, fmt.Errorf("pgclient: cannot encode %T as a query parameter", arg)
	}
}
