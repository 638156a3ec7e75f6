package newsletter

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var (
	ImproperlyConfiguredErr = errors.New("The newsletter module is improperly configured")
	NotOnlineErr            = errors.New("This newsletter is not online. You can't send it")
	RemoteListNotFoundErr   = errors.New("The remote list does not exist")
	UnknownBackendErr       = errors.New("Unknown newsletter backend")
	InvalidSubscriberErr    = errors.New("The subscriber is invalid")
)

// RemoteError is returned when a call to a vendor API fails.
type RemoteError struct {
	Op     string
	ListID string
	Err    error
}

func (e *RemoteError) Error() string {
	if e.ListID == "" {
		return fmt.Sprintf("remote %s failed: %v", e.Op, e.Err)
	}

	return fmt.Sprintf("remote %s on list %s failed: %v", e.Op, e.ListID, e.Err)
}

func (e *RemoteError) Unwrap() error { return e.Err }
func (e *RemoteError) Cause() error  { return e.Err }

// IsRemote reports whether err comes from a vendor call or a missing remote
// list, the two kinds an ErrorPolicy may swallow.
func IsRemote(err error) bool {
	var remote *RemoteError

	return errors.As(err, &remote) || errors.Is(err, RemoteListNotFoundErr)
}

// ErrorPolicy decides whether remote failures reach the caller.
type ErrorPolicy interface {
	Handle(err error) error
}

type failLoudly struct{}

// FailLoudly returns every error unchanged.
func FailLoudly() ErrorPolicy {
	return failLoudly{}
}

func (failLoudly) Handle(err error) error {
	return err
}

type failSilently struct {
	logger logrus.FieldLogger
}

// FailSilently logs remote errors and swallows them. Any other error is
// returned unchanged.
func FailSilently(logger logrus.FieldLogger) ErrorPolicy {
	return &failSilently{logger: logger}
}

func (p *failSilently) Handle(err error) error {
	if err == nil {
		return nil
	}

	if !IsRemote(err) {
		return err
	}

	p.logger.WithError(err).Warn("ignoring remote newsletter error")

	return nil
}
