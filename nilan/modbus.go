package nilan

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/victorjacobs/go-nilan/climate"
)

const (
	cmdReadHoldingRegisters byte = 3
	cmdReadInputRegisters   byte = 4
	cmdWriteMultipleRegs    byte = 16

	exceptionBit byte = 0x80
)

var (
	// ErrTimeout and ErrCRC are line problems that usually clear on retry.
	ErrTimeout = fmt.Errorf("nilan: response timeout: %w", climate.ErrTransientCommand)
	ErrCRC     = fmt.Errorf("nilan: crc mismatch: %w", climate.ErrTransientCommand)

	// ErrException means the unit understood and refused the request.
	ErrException = errors.New("nilan: exception response")

	ErrMalformed = errors.New("nilan: malformed response")
)

func crc16(data []byte) uint16 {
	crc := uint16(0xffff)

	for _, b := range data {
		crc ^= uint16(b)

		for i := 0; i < 8; i++ {
			if crc&0x01 != 0 {
				crc >>= 1
				crc ^= 0xa001
			} else {
				crc >>= 1
			}
		}
	}

	return crc
}

// appendCRC adds the checksum, low byte first.
func appendCRC(frame []byte) []byte {
	crc := crc16(frame)
	return append(frame, byte(crc&0xff), byte(crc>>8))
}

func packRead(address byte, function byte, start, count uint16) []byte {
	frame := []byte{address, function, 0, 0, 0, 0}
	binary.BigEndian.PutUint16(frame[2:4], start)
	binary.BigEndian.PutUint16(frame[4:6], count)

	return appendCRC(frame)
}

// packWrite builds a "write multiple registers" request for a single register.
func packWrite(address byte, register, value uint16) []byte {
	frame := []byte{
		address,
		cmdWriteMultipleRegs,
		byte(register >> 8),
		byte(register & 0xff),
		0, // number of registers msb
		1, // number of registers lsb
		2, // number of bytes to come
		byte(value >> 8),
		byte(value & 0xff),
	}

	return appendCRC(frame)
}

// expectedLength is the full length of a successful response to a request
// with the given function code, including the CRC.
func expectedLength(function byte, count uint16) int {
	if function == cmdWriteMultipleRegs {
		return 8
	}
	return 5 + 2*int(count)
}

// parseResponse validates a complete response frame and returns its payload:
// the register bytes for reads, the echoed register/count for writes.
func parseResponse(address, function byte, frame []byte) ([]byte, error) {
	if len(frame) < 5 {
		return nil, fmt.Errorf("%w: %d bytes", ErrMalformed, len(frame))
	}

	body, sum := frame[:len(frame)-2], frame[len(frame)-2:]
	if crc16(body) != binary.LittleEndian.Uint16(sum) {
		return nil, ErrCRC
	}

	if body[0] != address {
		return nil, fmt.Errorf("%w: address %d, expected %d", ErrMalformed, body[0], address)
	}

	if body[1] == function|exceptionBit {
		return nil, fmt.Errorf("%w: code %d", ErrException, body[2])
	}
	if body[1] != function {
		return nil, fmt.Errorf("%w: function %d, expected %d", ErrMalformed, body[1], function)
	}

	if function == cmdWriteMultipleRegs {
		return body[2:], nil
	}

	n := int(body[2])
	if len(body) != 3+n {
		return nil, fmt.Errorf("%w: byte count %d, got %d", ErrMalformed, n, len(body)-3)
	}

	return body[3:], nil
}

func get16(data []byte, offset int) uint16 {
	return binary.BigEndian.Uint16(data[offset : offset+2])
}

// scaleHundredths converts a signed register holding hundredths.
func scaleHundredths(raw uint16) float64 {
	return float64(int16(raw)) / 100
}
