package tv

import "encoding/json"

// Outgoing control-plane frames. The TV speaks the Samsung remote-control
// channel protocol: a connect handshake, then one command per connection.

type connectFrame struct {
	Method string        `json:"method"`
	Params connectParams `json:"params"`
}

type connectParams struct {
	SessionID  string `json:"sessionId"`
	ClientIP   string `json:"clientIp"`
	DeviceName string `json:"deviceName"`
}

type keyFrame struct {
	Method string    `json:"method"`
	Params keyParams `json:"params"`
}

type keyParams struct {
	Cmd          string `json:"Cmd"`
	DataOfCmd    string `json:"DataOfCmd"`
	Option       string `json:"Option"`
	TypeOfRemote string `json:"TypeOfRemote"`
}

type emitFrame struct {
	Method string     `json:"method"`
	Params emitParams `json:"params"`
}

type emitParams struct {
	Event string        `json:"event"`
	To    string        `json:"to"`
	Data  launchPayload `json:"data"`
}

type launchPayload struct {
	ActionType string `json:"action_type"`
	AppID      string `json:"appId"`
	MetaTag    string `json:"metaTag"`
}

// inboundFrame is an event frame received from the TV. The authorization
// grant arrives as an "ms.channel.connect" event carrying the token.
type inboundFrame struct {
	Event string      `json:"event"`
	Data  inboundData `json:"data"`
}

type inboundData struct {
	Token   string          `json:"token"`
	ID      string          `json:"id"`
	Clients json.RawMessage `json:"clients"`
}

func newConnectFrame(deviceName string) connectFrame {
	return connectFrame{
		Method: "ms.channel.connect",
		Params: connectParams{DeviceName: deviceName},
	}
}

func newKeyFrame(key string) keyFrame {
	return keyFrame{
		Method: "ms.remote.control",
		Params: keyParams{
			Cmd:          "Click",
			DataOfCmd:    key,
			Option:       "false",
			TypeOfRemote: "SendRemoteKey",
		},
	}
}

func newLaunchFrame(appID, actionType, metaTag string) emitFrame {
	return emitFrame{
		Method: "ms.channel.emit",
		Params: emitParams{
			Event: "ed.apps.launch",
			To:    "host",
			Data: launchPayload{
				ActionType: actionType,
				AppID:      appID,
				MetaTag:    metaTag,
			},
		},
	}
}
