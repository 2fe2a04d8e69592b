package client

import (
	"github.com/ValentinKolb/mKV/rpc/common"
	"github.com/ValentinKolb/mKV/rpc/transport"
	"github.com/cockroachdb/errors"
	"github.com/lni/dragonboat/v4/logger"
)

var (
	Logger = logger.GetLogger("client")
)

var (
	// ErrNoDBSelected is returned by data commands before a successful Use
	ErrNoDBSelected = errors.New("no db selected")
	// ErrInvalidData is returned for a flat token list that does not form key/value pairs
	ErrInvalidData = errors.New("invalid data")
	// ErrUnexpectedResponse is returned when the server answers with the wrong response type
	ErrUnexpectedResponse = errors.New("unexpected response")
)

// ServerError is an Error response sent by the server
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string {
	return "server error: " + e.Message
}

// IsServerError reports whether err is an Error response with exactly msg
func IsServerError(err error, msg string) bool {
	var se *ServerError
	return errors.As(err, &se) && se.Message == msg
}

// invoke sends req and checks the response.
// An Error response is returned as *ServerError, any response type other than
// want as ErrUnexpectedResponse.
func invoke(t transport.IRPCClientTransport, req common.Message, want common.MessageType) (common.Message, error) {
	resp, err := t.Send(req)
	if err != nil {
		return nil, err
	}

	if e, ok := resp.(*common.ErrorResp); ok {
		return nil, &ServerError{Message: e.Message}
	}

	if resp.Type() != want {
		Logger.Warningf("%s answered with %s, expected %s", req.Type(), resp.Type(), want)
		return nil, errors.Wrapf(ErrUnexpectedResponse, "%s answered with %s, expected %s", req.Type(), resp.Type(), want)
	}
	return resp, nil
}
