package apdu

import "fmt"

// StatusWord is the two-byte code (SW1 SW2) terminating every device
// response. Any 16-bit value is a valid StatusWord: the ones listed below
// are those the Bitcoin app is known to return, everything else is reported
// as unknown but still carried as is.
type StatusWord uint16

const (
	SwOK                   StatusWord = 0x9000
	SwDeny                 StatusWord = 0x6985
	SwIncorrectData        StatusWord = 0x6A80
	SwNotSupported         StatusWord = 0x6A82
	SwWrongP1P2            StatusWord = 0x6A86
	SwWrongDataLength      StatusWord = 0x6A87
	SwInsNotSupported      StatusWord = 0x6D00
	SwClaNotSupported      StatusWord = 0x6E00
	SwBadState             StatusWord = 0xB007
	SwSignatureFail        StatusWord = 0xB008
	SwInterruptedExecution StatusWord = 0xE000
	SwDeviceLocked         StatusWord = 0x5515
	SwAppNotOpen           StatusWord = 0x6511
)

var statusWordString = map[StatusWord]string{
	SwOK:                   "OK",
	SwDeny:                 "Deny",
	SwIncorrectData:        "IncorrectData",
	SwNotSupported:         "NotSupported",
	SwWrongP1P2:            "WrongP1P2",
	SwWrongDataLength:      "WrongDataLength",
	SwInsNotSupported:      "InsNotSupported",
	SwClaNotSupported:      "ClaNotSupported",
	SwBadState:             "BadState",
	SwSignatureFail:        "SignatureFail",
	SwInterruptedExecution: "InterruptedExecution",
	SwDeviceLocked:         "DeviceLocked",
	SwAppNotOpen:           "AppNotOpen",
}

func (sw StatusWord) String() string {
	if s, ok := statusWordString[sw]; ok {
		return fmt.Sprintf("%s (0x%04X)", s, uint16(sw))
	}
	return fmt.Sprintf("Unknown (0x%04X)", uint16(sw))
}

// IsKnown returns whether the status word belongs to the table of codes
// returned by the Bitcoin app.
func (sw StatusWord) IsKnown() bool {
	_, ok := statusWordString[sw]
	return ok
}

func (sw StatusWord) SW1() byte {
	return byte(sw >> 8)
}

func (sw StatusWord) SW2() byte {
	return byte(sw)
}
