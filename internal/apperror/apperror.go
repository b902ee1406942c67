package apperror

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// Kind classifies a failure for the agent layer. Callers branch on the kind,
// never on the message text.
type Kind string

const (
	NotFound                  Kind = "NOT_FOUND"
	InvalidSelection          Kind = "INVALID_SELECTION"
	NoPendingResolution       Kind = "NO_PENDING_RESOLUTION"
	NoActiveProperty          Kind = "NO_ACTIVE_PROPERTY"
	InvalidInput              Kind = "INVALID_INPUT"
	UpstreamTimeout           Kind = "UPSTREAM_TIMEOUT"
	UpstreamUnavailable       Kind = "UPSTREAM_UNAVAILABLE"
	UpstreamMalformedResponse Kind = "UPSTREAM_MALFORMED_RESPONSE"
	PartialAggregationFailure Kind = "PARTIAL_AGGREGATION_FAILURE"
	Internal                  Kind = "INTERNAL"
)

// Error is the structured error returned by every core operation.
type Error struct {
	Kind         Kind
	Message      string
	Instructions []string
	Err          error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same kind, so errors.Is(err, &Error{Kind: NotFound})
// works regardless of message.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// New builds an error with the default instructions for the kind.
func New(kind Kind, msg string, err error) *Error {
	return &Error{
		Kind:         kind,
		Message:      msg,
		Instructions: DefaultInstructions(kind),
		Err:          err,
	}
}

// WithInstructions replaces the instructions handed to the agent layer.
func (e *Error) WithInstructions(instructions ...string) *Error {
	e.Instructions = instructions
	return e
}

// KindOf returns the kind of the first *Error in the chain, or Internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Classify turns a transport level error into an upstream error. Errors that
// are already classified pass through unchanged.
func Classify(service string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	if isTimeout(err) {
		return New(UpstreamTimeout, service+" took too long to respond", err)
	}
	return New(UpstreamUnavailable, "could not reach "+service, err)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return strings.Contains(err.Error(), "Client.Timeout exceeded")
}

// UserFacing collapses kinds that share a user message. Malformed upstream
// payloads are an operator concern; users only learn the service is unavailable.
func UserFacing(kind Kind) Kind {
	if kind == UpstreamMalformedResponse {
		return UpstreamUnavailable
	}
	return kind
}

// DefaultInstructions are the structured instructions for the agent layer,
// which composes the final sentence for the user.
func DefaultInstructions(kind Kind) []string {
	switch UserFacing(kind) {
	case NotFound:
		return []string{
			"Informe ao usuário que o local indicado não consta na base pública do CAR.",
			"Peça que verifique a localização ou o código do CAR e tente novamente.",
		}
	case InvalidSelection:
		return []string{"Peça ao usuário que escolha um número válido entre as opções apresentadas."}
	case NoPendingResolution:
		return []string{"Não há propriedade pendente. Peça ao usuário que envie uma localização ou código do CAR."}
	case NoActiveProperty:
		return []string{
			"Informe que o sistema ainda não sabe qual é a propriedade.",
			"Solicite que o usuário envie a localização pelo pino do WhatsApp ou o código do CAR.",
		}
	case InvalidInput:
		return []string{"Peça ao usuário que revise os dados informados."}
	case UpstreamTimeout:
		return []string{
			"Informe ao usuário que o serviço demorou muito para responder.",
			"Peça ao usuário para tentar novamente mais tarde.",
		}
	case UpstreamUnavailable:
		return []string{
			"Informe ao usuário que houve uma falha de conexão com o serviço externo.",
			"Peça ao usuário para tentar novamente mais tarde.",
		}
	case PartialAggregationFailure:
		return []string{
			"Peça desculpas ao usuário: não foi possível calcular as estatísticas da pastagem.",
			"Peça ao usuário para tentar novamente mais tarde.",
		}
	default:
		return []string{
			"Peça desculpas ao usuário e informe que houve um erro interno.",
			"Peça que o usuário tente novamente mais tarde.",
		}
	}
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
