package rtmp

import (
	"github.com/pkg/errors"

	"github.com/chipsTM/rtmp/amf0"
)

// Command names the engine reacts to. Everything else gets a
// NetConnection.Call.Failed reply.
const (
	commandConnect         = "connect"
	commandCreateStream    = "createStream"
	commandReleaseStream   = "releaseStream"
	commandFCPublish       = "FCPublish"
	commandFCUnpublish     = "FCUnpublish"
	commandGetStreamLength = "getStreamLength"
	commandPublish         = "publish"
	commandPlay            = "play"
	commandDeleteStream    = "deleteStream"
	commandCloseStream     = "closeStream"
	commandPause           = "pause"
	commandReceiveAudio    = "receiveAudio"
	commandReceiveVideo    = "receiveVideo"

	commandResult   = "_result"
	commandError    = "_error"
	commandOnStatus = "onStatus"
)

// Status levels and codes, per the Flash Media Server vocabulary that
// every encoder expects.
const (
	levelStatus = "status"
	levelError  = "error"

	codeConnectSuccess   = "NetConnection.Connect.Success"
	codeConnectRejected  = "NetConnection.Connect.Rejected"
	codeCallFailed       = "NetConnection.Call.Failed"
	codePublishStart     = "NetStream.Publish.Start"
	codePublishBadName   = "NetStream.Publish.BadName"
	codePublishFailed    = "NetStream.Publish.Failed"
	codeUnpublishSuccess = "NetStream.Unpublish.Success"
	codePlayFailed       = "NetStream.Play.Failed"
)

// fmsVersion and fmsCapabilities are advertised in the connect _result,
// matching what Flash Media Server 3 answers.
const (
	fmsVersion      = "FMS/3,0,1,123"
	fmsCapabilities = 31.0
)

// command is a decoded AMF0 command message: name, transaction id, the
// command object (nil when the peer sent null) and the trailing
// arguments.
type command struct {
	name          string
	transactionID float64
	object        map[string]interface{}
	args          []interface{}
}

// parseCommand decodes the AMF0 body of a command message. All failures
// are recoverable; the session logs and drops the message.
func parseCommand(payload []byte) (*command, error) {
	values, err := amf0.DecodeAll(payload)
	if err != nil {
		return nil, newError(KindAMF0Decode, errors.Wrap(err, "decoding command"))
	}
	if len(values) < 2 {
		return nil, errorf(KindAMF0Decode,
			"command carries %d AMF0 values, want at least name and transaction id", len(values))
	}
	name, ok := values[0].(string)
	if !ok {
		return nil, errorf(KindAMF0Decode, "command name is %T, want string", values[0])
	}
	transactionID, ok := values[1].(float64)
	if !ok {
		return nil, errorf(KindAMF0Decode, "transaction id is %T, want number", values[1])
	}

	cmd := &command{name: name, transactionID: transactionID}
	if len(values) > 2 {
		switch object := values[2].(type) {
		case map[string]interface{}:
			cmd.object = object
		case amf0.ECMAArray:
			cmd.object = map[string]interface{}(object)
		case nil:
			// Explicit null command object.
		default:
			return nil, errorf(KindAMF0Decode, "command object is %T, want object or null", values[2])
		}
		cmd.args = values[3:]
	}
	return cmd, nil
}

// objectString returns the named command-object field when it is a
// string, or "".
func (c *command) objectString(key string) string {
	s, _ := c.object[key].(string)
	return s
}

// stringArg returns trailing argument i when it is a string.
func (c *command) stringArg(i int) (string, bool) {
	if i >= len(c.args) {
		return "", false
	}
	s, ok := c.args[i].(string)
	return s, ok
}

// numberArg returns trailing argument i when it is a number.
func (c *command) numberArg(i int) (float64, bool) {
	if i >= len(c.args) {
		return 0, false
	}
	f, ok := c.args[i].(float64)
	return f, ok
}

// newConnectResultMessage is the _result completing a successful
// connect: server properties first, status info second.
func newConnectResultMessage(transactionID float64) (*Message, error) {
	payload, err := amf0.EncodeAll(
		commandResult,
		transactionID,
		map[string]interface{}{
			"fmsVer":       fmsVersion,
			"capabilities": fmsCapabilities,
		},
		map[string]interface{}{
			"level":          levelStatus,
			"code":           codeConnectSuccess,
			"description":    "Connection Succeeded.",
			"objectEncoding": 0.0,
		},
	)
	if err != nil {
		return nil, errors.Wrap(err, "encoding connect _result")
	}
	return &Message{Type: CommandMessageAMF0, Payload: payload}, nil
}

// newCreateStreamResultMessage answers createStream with the allocated
// message stream id.
func newCreateStreamResultMessage(transactionID float64, msid uint32) (*Message, error) {
	payload, err := amf0.EncodeAll(commandResult, transactionID, nil, float64(msid))
	if err != nil {
		return nil, errors.Wrap(err, "encoding createStream _result")
	}
	return &Message{Type: CommandMessageAMF0, Payload: payload}, nil
}

// newResultMessage acknowledges bookkeeping commands (releaseStream,
// FCPublish and friends) with an empty _result.
func newResultMessage(transactionID float64) (*Message, error) {
	payload, err := amf0.EncodeAll(commandResult, transactionID, nil, nil)
	if err != nil {
		return nil, errors.Wrap(err, "encoding _result")
	}
	return &Message{Type: CommandMessageAMF0, Payload: payload}, nil
}

// newErrorMessage is the _error reply carrying an info object.
func newErrorMessage(transactionID float64, code, description string) (*Message, error) {
	payload, err := amf0.EncodeAll(commandError, transactionID, nil, map[string]interface{}{
		"level":       levelError,
		"code":        code,
		"description": description,
	})
	if err != nil {
		return nil, errors.Wrap(err, "encoding _error")
	}
	return &Message{Type: CommandMessageAMF0, Payload: payload}, nil
}

// newOnStatusMessage is the server-pushed onStatus event for msid; its
// transaction id is always 0.
func newOnStatusMessage(msid uint32, level, code, description string) (*Message, error) {
	payload, err := amf0.EncodeAll(commandOnStatus, 0.0, nil, map[string]interface{}{
		"level":       level,
		"code":        code,
		"description": description,
	})
	if err != nil {
		return nil, errors.Wrap(err, "encoding onStatus")
	}
	return &Message{Type: CommandMessageAMF0, StreamID: msid, Payload: payload}, nil
}
