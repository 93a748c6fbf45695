package at

import "strconv"

const (
	// Terminal Control
	CR     = "\r"
	CRLF   = "\r\n"
	Prompt = "> "
	CtrlZ  = "\x1a"
	Esc    = "\x1b"

	// Response Codes
	OK         = "OK"
	ERROR      = "ERROR"
	NoCarrier  = "NO CARRIER"
	NoDialtone = "NO DIALTONE"
	Busy       = "BUSY"
	NoAnswer   = "NO ANSWER"
	CmeError   = "+CME ERROR:"
	CmsError   = "+CMS ERROR:"

	// URCs (Unsolicited Result Codes)
	UrcNewMsg         = "+CMTI:"
	UrcMessageReport  = "+CDSI:"
	UrcSignalStrength = "+CSQ:"
	UrcCall           = "RING"

	// Information responses
	InfoList          = "+CMGL:"
	InfoRead          = "+CMGR:"
	InfoServiceCenter = "+CSCA:"
)

// Commands issued by the modem package. Each one is sent followed by a
// carriage return.
const (
	CmdEchoOff          = "ATE0"
	CmdPDUMode          = "AT+CMGF=0"
	CmdNotifyNewMessage = "AT+CNMI=2,1"
	CmdManufacturer     = "AT+CGMI"
	CmdServiceCenter    = "AT+CSCA?"
	CmdListUnread       = "AT+CMGL=0"
)

// SendPDU returns the command that starts a PDU mode submission of length
// octets, not counting the service centre address.
func SendPDU(length int) string {
	return "AT+CMGS=" + strconv.Itoa(length)
}

// ReadMessage returns the command that reads the message stored at index.
func ReadMessage(index int) string {
	return "AT+CMGR=" + strconv.Itoa(index)
}

// DeleteMessage returns the command that deletes the message stored at index.
func DeleteMessage(index int) string {
	return "AT+CMGD=" + strconv.Itoa(index)
}

type ResponseType int

const (
	TypeFinal  ResponseType = iota // OK, ERROR
	TypeURC                        // Asynchronous notifications
	TypeData                       // Intermediate command output (+CSQ: ...)
	TypePrompt                     // SMS input prompt
)

func (t ResponseType) String() string {
	switch t {
	case TypeFinal:
		return "final"
	case TypeURC:
		return "urc"
	case TypeData:
		return "data"
	case TypePrompt:
		return "prompt"
	default:
		return "unknown"
	}
}
