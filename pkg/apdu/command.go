package apdu

import "encoding/binary"

const (
	// MaxDataLength is the maximum size of the data field of a short APDU.
	MaxDataLength = 255

	// CurrentProtocolVersion is sent as P2 of every Bitcoin app command.
	CurrentProtocolVersion = 1
)

// Class bytes.
const (
	ClaDefault   byte = 0xB0
	ClaBitcoin   byte = 0xE1
	ClaFramework byte = 0xF8
)

// Instruction bytes of the Bitcoin app (ClaBitcoin).
const (
	InsGetExtendedPubkey    byte = 0x00
	InsRegisterWallet       byte = 0x02
	InsGetWalletAddress     byte = 0x03
	InsSignPsbt             byte = 0x04
	InsGetMasterFingerprint byte = 0x05
	InsSignMessage          byte = 0x10
)

// Instruction bytes outside of the Bitcoin app class.
const (
	// InsGetVersion is sent with ClaDefault.
	InsGetVersion byte = 0x01
	// InsContinueInterrupted is sent with ClaFramework.
	InsContinueInterrupted byte = 0x01
)

// Command is a short APDU command.
type Command struct {
	Cla  byte
	Ins  byte
	P1   byte
	P2   byte
	Data []byte
}

// NewBitcoinCommand returns a command of the Bitcoin app class for the
// given instruction, speaking the current protocol version.
func NewBitcoinCommand(ins byte, data []byte) Command {
	return Command{
		Cla:  ClaBitcoin,
		Ins:  ins,
		P1:   0x00,
		P2:   CurrentProtocolVersion,
		Data: data,
	}
}

// NewContinueCommand returns the framework command used to answer a
// request issued by the device while the execution of a command is
// interrupted.
func NewContinueCommand(response []byte) Command {
	return Command{
		Cla:  ClaFramework,
		Ins:  InsContinueInterrupted,
		Data: response,
	}
}

// Encode serializes the command as CLA | INS | P1 | P2 | Lc | data.
func (c Command) Encode() ([]byte, error) {
	if len(c.Data) > MaxDataLength {
		return nil, ErrDataTooLong
	}

	buf := make([]byte, 0, 5+len(c.Data))
	buf = append(buf, c.Cla, c.Ins, c.P1, c.P2, byte(len(c.Data)))
	return append(buf, c.Data...), nil
}

// ParseResponse splits a raw device response into its status word and the
// data that precedes it.
func ParseResponse(raw []byte) (StatusWord, []byte, error) {
	if len(raw) < 2 {
		return 0, nil, ErrShortResponse
	}

	n := len(raw) - 2
	sw := StatusWord(binary.BigEndian.Uint16(raw[n:]))
	data := make([]byte, n)
	copy(data, raw[:n])
	return sw, data, nil
}
