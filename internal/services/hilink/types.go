package hilink

import (
	"encoding/xml"
	"fmt"
)

// ConnectionState is the vendor's ConnectionStatus code.
type ConnectionState int

const (
	StateConnecting    ConnectionState = 900
	StateConnected     ConnectionState = 901
	StateDisconnected  ConnectionState = 902
	StateDisconnecting ConnectionState = 903
	StateConnectFailed ConnectionState = 904
	StateStatusNull    ConnectionState = 905
	StateStatusError   ConnectionState = 906
)

// Connected reports whether the modem has a live WAN connection.
func (s ConnectionState) Connected() bool {
	return s == StateConnected
}

func (s ConnectionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateDisconnecting:
		return "disconnecting"
	case StateConnectFailed:
		return "connect failed"
	case StateStatusNull:
		return "status null"
	case StateStatusError:
		return "status error"
	default:
		return fmt.Sprintf("unknown (%d)", int(s))
	}
}

// StatusInfo is the subset of /api/monitoring/status the watchdog cares
// about.
type StatusInfo struct {
	ConnectionStatus   ConnectionState
	SignalIcon         int
	CurrentNetworkType int
	RoamingStatus      int
}

// DeviceInfo is the subset of /api/device/information logged before a
// reboot.
type DeviceInfo struct {
	DeviceName      string `xml:"DeviceName"`
	SerialNumber    string `xml:"SerialNumber"`
	IMEI            string `xml:"Imei"`
	HardwareVersion string `xml:"HardwareVersion"`
	SoftwareVersion string `xml:"SoftwareVersion"`
}

// VendorError is a HiLink error envelope decoded from a response body.
type VendorError struct {
	Code    int
	Message string
}

func (e *VendorError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("hilink error %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("hilink error %d", e.Code)
}

// Session-class vendor codes: the request was fine but the session or token
// went stale. One refresh-and-retry is allowed for these.
const (
	codeWrongToken        = 125001
	codeWrongSession      = 125002
	codeWrongSessionToken = 125003
)

func sessionExpired(code int) bool {
	switch code {
	case codeWrongToken, codeWrongSession, codeWrongSessionToken:
		return true
	default:
		return false
	}
}

type sesTokResponse struct {
	XMLName xml.Name `xml:"response"`
	SesInfo string   `xml:"SesInfo"`
	TokInfo string   `xml:"TokInfo"`
}

type loginRequest struct {
	XMLName      xml.Name `xml:"request"`
	Username     string   `xml:"Username"`
	Password     string   `xml:"Password"`
	PasswordType int      `xml:"password_type"`
}

type controlRequest struct {
	XMLName xml.Name `xml:"request"`
	Control int      `xml:"Control"`
}

// rebootControl is the /api/device/control code that power-cycles the modem.
const rebootControl = 1

type statusResponse struct {
	XMLName            xml.Name `xml:"response"`
	ConnectionStatus   int      `xml:"ConnectionStatus"`
	SignalIcon         int      `xml:"SignalIcon"`
	CurrentNetworkType int      `xml:"CurrentNetworkType"`
	RoamingStatus      int      `xml:"RoamingStatus"`
}

type deviceInfoResponse struct {
	XMLName xml.Name `xml:"response"`
	DeviceInfo
}

type errorResponse struct {
	XMLName xml.Name `xml:"error"`
	Code    int      `xml:"code"`
	Message string   `xml:"message"`
}
