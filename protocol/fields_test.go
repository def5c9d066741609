package protocol

import (
	"testing"

	"github.com/jackc/pgproto3/v2"
	"github.com/stretchr/testify/require"
)

func fieldList(pairs ...string) []byte {
	var out []byte
	for i := 0; i < len(pairs); i += 2 {
		out = append(out, pairs[i][0])
		out = append(out, pairs[i+1]...)
		out = append(out, 0)
	}
	return append(out, 0)
}

func TestParseFields(t *testing.T) {
	payload := fieldList(
		"S", "FEHLER",
		"V", "ERROR",
		"C", "42P01",
		"M", `relation "users" does not exist`,
		"P", "15",
		"F", "parse_relation.c",
		"L", "1392",
		"R", "parserOpenTable",
	)

	f, err := ParseFields(payload)
	require.NoError(t, err)
	require.Equal(t, "ERROR", f.Severity)
	require.Equal(t, "42P01", f.Code)
	require.Equal(t, `relation "users" does not exist`, f.Message)
	require.Equal(t, "15", f.Position)
	require.Equal(t, "parse_relation.c", f.File)
	require.Equal(t, "1392", f.Line)
	require.Equal(t, "parserOpenTable", f.Routine)
}

func TestParseFieldsSeverityFallback(t *testing.T) {
	// backends older than 9.6 only send the localized 'S' field
	f, err := ParseFields(fieldList("S", "ERROR", "C", "0A000", "M", "not supported"))
	require.NoError(t, err)
	require.Equal(t, "ERROR", f.Severity)
}

func TestParseFieldsMissingMandatory(t *testing.T) {
	cases := map[string][]byte{
		"no severity": fieldList("C", "42601", "M", "syntax error"),
		"no code":     fieldList("S", "ERROR", "M", "syntax error"),
		"no message":  fieldList("S", "ERROR", "C", "42601"),
		"empty":       {0},
	}

	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			f, err := ParseFields(payload)
			require.Error(t, err)
			require.Nil(t, f)
		})
	}
}

func TestParseFieldsIgnoresUnknownTags(t *testing.T) {
	f, err := ParseFields(fieldList("S", "NOTICE", "C", "00000", "M", "hi", "q", "future"))
	require.NoError(t, err)
	require.Equal(t, "hi", f.Message)
}

func TestParseFieldsWithoutTrailingTerminator(t *testing.T) {
	payload := fieldList("S", "ERROR", "C", "57014", "M", "canceling statement")
	payload = payload[:len(payload)-1]

	f, err := ParseFields(payload)
	require.NoError(t, err)
	require.Equal(t, "57014", f.Code)
}

func TestParseFieldsFromEncodedErrorResponse(t *testing.T) {
	wire := (&pgproto3.ErrorResponse{
		Severity:  "ERROR",
		Code:      "23505",
		Message:   "duplicate key value violates unique constraint",
		Detail:    "Key (id)=(1) already exists.",
		TableName: "users",
	}).Encode(nil)

	f, err := ParseFields(wire[HeaderSize:])
	require.NoError(t, err)
	require.Equal(t, "ERROR", f.Severity)
	require.Equal(t, "23505", f.Code)
	require.Equal(t, "Key (id)=(1) already exists.", f.Detail)
	require.Equal(t, "users", f.Table)
}
