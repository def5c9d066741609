package pgclient

import (
	"crypto/md5"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMD5Password(t *testing.T) {
	salt := []byte{0x0A, 0x0B, 0x0C, 0x0D}
	got := md5Password("alice", "hunter2", salt)

	inner := fmt.Sprintf("%x", md5.Sum([]byte("hunter2alice")))
	want := fmt.Sprintf("md5%x", md5.Sum(append([]byte(inner), salt...)))
	require.Equal(t, want, got)

	// "md5" prefix plus 32 hex digits
	require.Len(t, got, 35)
	require.Equal(t, "md5", got[:3])
}

func TestMD5PasswordSaltSensitivity(t *testing.T) {
	a := md5Password("alice", "hunter2", []byte{1, 2, 3, 4})
	b := md5Password("alice", "hunter2", []byte{4, 3, 2, 1})
	require.NotEqual(t, a, b)

	again := md5Password("alice", "hunter2", []byte{1, 2, 3, 4})
	require.Equal(t, a, again)
}
