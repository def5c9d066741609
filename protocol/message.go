package protocol

// backend message types
const (
	AuthenticationRequest = 'R'
	BackendKeyData        = 'K'
	BindComplete          = '2'
	CloseComplete         = '3'
	CommandComplete       = 'C'
	DataRow               = 'D'
	EmptyQueryResponse    = 'I'
	ErrorResponse         = 'E'
	NoData                = 'n'
	NoticeResponse        = 'N'
	NotificationResponse  = 'A'
	ParameterDescription  = 't'
	ParameterStatus       = 'S'
	ParseComplete         = '1'
	PortalSuspended       = 's'
	ReadyForQuery         = 'Z'
	RowDescription        = 'T'
)

// frontend message types
const (
	Bind            = 'B'
	Close           = 'C'
	Describe        = 'D'
	Execute         = 'E'
	Flush           = 'H'
	Parse           = 'P'
	PasswordMessage = 'p'
	Query           = 'Q'
	Sync            = 'S'
	Terminate       = 'X'
)

// authentication request codes carried in the payload of an 'R' message
const (
	AuthOK                = 0
	AuthCleartextPassword = 3
	AuthMD5Password       = 5
)

// object types used by Describe and Close messages
const (
	ObjectStatement = 'S'
	ObjectPortal    = 'P'
)

// HeaderSize is the size of a typed message header: a single-byte type
// tag followed by an Int32 length that includes itself but not the tag.
const HeaderSize = 5

// Message is just an alias for a slice of bytes that exposes common operations
// on Postgres' client-server protocol messages.
// see: https://www.postgresql.org/docs/current/protocol-message-formats.html
// for postgres specific list of message formats
type Message []byte

// Type returns a single-char byte representing the message type. The full
// list of available types is available in the aforementioned documentation.
func (m Message) Type() byte {
	var b byte
	if len(m) > 0 {
		b = m[0]
	}
	return b
}

// IsError determines if the message is an ErrorResponse
func (m Message) IsError() bool {
	return m.Type() == ErrorResponse
}

// Payload returns the message body following the 5-byte header.
func (m Message) Payload() []byte {
	if len(m) < HeaderSize {
		return nil
	}
	return m[HeaderSize:]
}
