package protocol

import "encoding/json"

const Version = "1.0"

// Message types.
const (
	TypeHello     = "HELLO"
	TypeWelcome   = "WELCOME"
	TypeGrow      = "GROW"
	TypeDecorate  = "DECORATE"
	TypeStats     = "STATS"
	TypeCells     = "CELLS"
	TypeActivate  = "ACTIVATE"
	TypeSave      = "SAVE"
	TypeGrown     = "GROWN"
	TypeActivated = "ACTIVATED"
	TypeSaved     = "SAVED"
	TypeEvent     = "EVENT"
	TypeError     = "ERROR"
)

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
	RequestID       string `json:"request_id,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}
