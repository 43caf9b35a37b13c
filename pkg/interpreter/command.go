package interpreter

import "fmt"

// ClientCommand is the code of a request the device sends to the client
// while the execution of an APDU command is interrupted.
type ClientCommand byte

const (
	Yield              ClientCommand = 0x10
	GetPreimage        ClientCommand = 0x40
	GetMerkleLeafProof ClientCommand = 0x41
	GetMerkleLeafIndex ClientCommand = 0x42
	GetMoreElements    ClientCommand = 0xA0
)

var clientCommandString = map[ClientCommand]string{
	Yield:              "YIELD",
	GetPreimage:        "GET_PREIMAGE",
	GetMerkleLeafProof: "GET_MERKLE_LEAF_PROOF",
	GetMerkleLeafIndex: "GET_MERKLE_LEAF_INDEX",
	GetMoreElements:    "GET_MORE_ELEMENTS",
}

func (c ClientCommand) String() string {
	if s, ok := clientCommandString[c]; ok {
		return s
	}
	return fmt.Sprintf("UNKNOWN(0x%02x)", byte(c))
}
