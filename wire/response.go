package wire

import "github.com/busreg/busreg/buserr"

// Response status byte values used by every OpAcquire/OpRelease/OpLookup
// reply: the first byte of a response frame's payload.
const (
	StatusOK    byte = 0
	StatusError byte = 1
)

// PutError encodes a failure as [StatusError][code(u32)][message(string)].
func PutError(err error) []byte {
	code, ok := buserr.CodeOf(err)
	if !ok {
		code = buserr.CodeNoMem
	}
	buf := []byte{StatusError}
	buf = PutUint32(buf, uint32(code))
	buf = PutString(buf, err.Error())
	return buf
}

// GetError decodes a payload written by PutError. Callers check the first
// byte against StatusError before calling this.
func GetError(buf []byte) (code buserr.Code, message string, err error) {
	if len(buf) < 1 {
		return 0, "", errShortBuffer("response status")
	}
	n, rest, err := GetUint32(buf[1:])
	if err != nil {
		return 0, "", err
	}
	msg, _, err := GetString(rest)
	if err != nil {
		return 0, "", err
	}
	return buserr.Code(n), msg, nil
}
