package pgclient

import (
	"crypto/md5"
	"fmt"
)

// md5Password computes the response to an AuthenticationMD5Password request:
// concat('md5', md5(concat(md5(concat(password, username)), random-salt))),
// with both md5 digests spelled out in lowercase hex.
func md5Password(user, password string, salt []byte) string {
	puHash := fmt.Sprintf("%x", md5.Sum([]byte(password+user)))
	return fmt.Sprintf("md5%x", md5.Sum(append([]byte(puHash), salt...)))
}
