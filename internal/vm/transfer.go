package vm

import "fmt"

// ByteMachine is the subset of Machine that safely moves single bytes
// across the user/kernel boundary, raising (and the caller retrying) a
// page fault on a TLB miss. Grounded on userprog/transfer.cc.
type ByteMachine interface {
	// ReadMem attempts to read size bytes at addr. ok is false on a TLB
	// miss; the caller should retry up to NumberOfTries times.
	ReadMem(addr int, size int) (value int, ok bool)
	// WriteMem attempts to write value as size bytes at addr. ok is
	// false on a TLB miss.
	WriteMem(addr int, size int, value int) (ok bool)
}

func readByte(m ByteMachine, addr int) (byte, error) {
	for i := 0; i < NumberOfTries; i++ {
		if v, ok := m.ReadMem(addr, 1); ok {
			return byte(v), nil
		}
	}
	return 0, fmt.Errorf("vm: user read at 0x%x failed after %d tries", addr, NumberOfTries)
}

func writeByte(m ByteMachine, addr int, v byte) error {
	for i := 0; i < NumberOfTries; i++ {
		if m.WriteMem(addr, 1, int(v)) {
			return nil
		}
	}
	return fmt.Errorf("vm: user write at 0x%x failed after %d tries", addr, NumberOfTries)
}

// ReadBufferFromUser copies byteCount bytes starting at userAddr into dst.
func ReadBufferFromUser(m ByteMachine, userAddr int, dst []byte, byteCount int) error {
	for i := 0; i < byteCount; i++ {
		b, err := readByte(m, userAddr+i)
		if err != nil {
			return err
		}
		dst[i] = b
	}
	return nil
}

// WriteBufferToUser copies byteCount bytes from src to userAddr.
func WriteBufferToUser(m ByteMachine, src []byte, userAddr int, byteCount int) error {
	for i := 0; i < byteCount; i++ {
		if err := writeByte(m, userAddr+i, src[i]); err != nil {
			return err
		}
	}
	return nil
}

// ReadStringFromUser reads at most maxByteCount bytes starting at
// userAddr into out, stopping at the first NUL. It reports whether a NUL
// terminator was found within the limit.
func ReadStringFromUser(m ByteMachine, userAddr int, maxByteCount int) (s string, terminated bool, err error) {
	buf := make([]byte, 0, maxByteCount)
	for count := 0; count < maxByteCount; count++ {
		b, rerr := readByte(m, userAddr+count)
		if rerr != nil {
			return "", false, rerr
		}
		if b == 0 {
			return string(buf), true, nil
		}
		buf = append(buf, b)
	}
	return string(buf), false, nil
}

// WriteStringToUser writes s followed by a NUL terminator starting at
// userAddr.
func WriteStringToUser(m ByteMachine, s string, userAddr int) error {
	for i := 0; i < len(s); i++ {
		if err := writeByte(m, userAddr+i, s[i]); err != nil {
			return err
		}
	}
	return writeByte(m, userAddr+len(s), 0)
}
