// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package uds

import "fmt"

// OutcomeKind classifies an interpreted response
type OutcomeKind uint8

// Outcome kinds
const (
	// NoData means no usable value: timeout, empty frame or short payload
	NoData OutcomeKind = iota
	// Value means a positive response was decoded
	Value
	// NegativeResponse means the ECU declined the request (0x7F)
	NegativeResponse
	// Malformed means a short frame that is not a positive response, or an
	// echoed identifier mismatch in strict mode
	Malformed
)

// String returns the outcome kind name
func (k OutcomeKind) String() string {
	switch k {
	case NoData:
		return "NO_DATA"
	case Value:
		return "VALUE"
	case NegativeResponse:
		return "NEGATIVE_RESPONSE"
	case Malformed:
		return "MALFORMED"
	default:
		return "UNKNOWN"
	}
}

// Outcome is the result of interpreting one response
type Outcome struct {
	Kind    OutcomeKind
	Value   ScalarValue // set when Kind == Value
	Service byte        // echoed service ID of a negative response
	NRC     byte        // negative response code (0 if absent)
	HasNRC  bool
}

// InterpretOptions tunes response interpretation
type InterpretOptions struct {
	// StrictIdentifier treats a positive response whose echoed DID differs
	// from the requested one as Malformed. Off by default.
	StrictIdentifier bool
}

// Interpret classifies a raw ReadDataByIdentifier response for did and
// decodes its payload as t. An empty resp means no reply arrived in time.
func Interpret(resp []byte, did uint16, t ScalarType, opts InterpretOptions) Outcome {
	if len(resp) == 0 {
		return Outcome{Kind: NoData}
	}

	switch resp[0] {
	case SIDNegativeResponse:
		out := Outcome{Kind: NegativeResponse}
		if len(resp) > 1 {
			out.Service = resp[1]
		}
		if len(resp) > 2 {
			out.NRC = resp[2]
			out.HasNRC = true
		}
		return out

	case SIDReadDataByIdentifierResponse:
		if len(resp) <= ReadDataByIdentifierHeaderLength {
			// Positive header without payload: nothing fits any type
			return Outcome{Kind: NoData}
		}
		if opts.StrictIdentifier {
			echoed := uint16(resp[1])<<8 | uint16(resp[2])
			if echoed != did {
				return Outcome{Kind: Malformed}
			}
		}
		v, ok := Decode(resp[ReadDataByIdentifierHeaderLength:], t)
		if !ok {
			return Outcome{Kind: NoData}
		}
		return Outcome{Kind: Value, Value: v}
	}

	if len(resp) <= ReadDataByIdentifierHeaderLength {
		return Outcome{Kind: Malformed}
	}
	return Outcome{Kind: NoData}
}

// Apply returns the value a row should hold after this outcome, given its
// previous value. Decoded values replace it, NoData resets it to Unknown so
// stale readings do not linger, and negative or malformed responses leave it
// unchanged.
func (o Outcome) Apply(prev ScalarValue) ScalarValue {
	switch o.Kind {
	case Value:
		return o.Value
	case NoData:
		return Unknown()
	default:
		return prev
	}
}

// Err converts a negative response outcome to an error, nil otherwise
func (o Outcome) Err() error {
	if o.Kind != NegativeResponse {
		return nil
	}
	return &NegativeResponseError{Service: o.Service, NRC: o.NRC, HasNRC: o.HasNRC}
}

// String describes the outcome for logs
func (o Outcome) String() string {
	switch o.Kind {
	case Value:
		return fmt.Sprintf("VALUE %s", o.Value)
	case NegativeResponse:
		if !o.HasNRC {
			return "NEGATIVE_RESPONSE (no code)"
		}
		return fmt.Sprintf("NEGATIVE_RESPONSE 0x%02X %s", o.NRC, NRCName(o.NRC))
	default:
		return o.Kind.String()
	}
}

// NegativeResponseError reports a 0x7F response as an error value
type NegativeResponseError struct {
	Service byte
	NRC     byte
	HasNRC  bool
}

func (e *NegativeResponseError) Error() string {
	if !e.HasNRC {
		return fmt.Sprintf("negative response: SID=0x%02X", e.Service)
	}
	return fmt.Sprintf("negative response: SID=0x%02X, NRC=0x%02X (%s)", e.Service, e.NRC, NRCName(e.NRC))
}

// IsRetryable reports whether the ECU asked to repeat the request later
func (e *NegativeResponseError) IsRetryable() bool {
	return e.HasNRC && (e.NRC == NRCBusyRepeatRequest || e.NRC == NRCResponsePending)
}

// NRCName returns the ISO 14229 name for a negative response code
func NRCName(nrc byte) string {
	switch nrc {
	case NRCGeneralReject:
		return "generalReject"
	case NRCServiceNotSupported:
		return "serviceNotSupported"
	case NRCSubFunctionNotSupported:
		return "subFunctionNotSupported"
	case NRCIncorrectMessageLength:
		return "incorrectMessageLengthOrInvalidFormat"
	case NRCResponseTooLong:
		return "responseTooLong"
	case NRCBusyRepeatRequest:
		return "busyRepeatRequest"
	case NRCConditionsNotCorrect:
		return "conditionsNotCorrect"
	case NRCRequestSequenceError:
		return "requestSequenceError"
	case NRCNoResponseFromSubnetComponent:
		return "noResponseFromSubnetComponent"
	case NRCFailurePreventsExecution:
		return "failurePreventsExecutionOfRequestedAction"
	case NRCRequestOutOfRange:
		return "requestOutOfRange"
	case NRCSecurityAccessDenied:
		return "securityAccessDenied"
	case NRCInvalidKey:
		return "invalidKey"
	case NRCExceedNumberOfAttempts:
		return "exceedNumberOfAttempts"
	case NRCRequiredTimeDelayNotExpired:
		return "requiredTimeDelayNotExpired"
	case NRCUploadDownloadNotAccepted:
		return "uploadDownloadNotAccepted"
	case NRCTransferDataSuspended:
		return "transferDataSuspended"
	case NRCGeneralProgrammingFailure:
		return "generalProgrammingFailure"
	case NRCWrongBlockSequenceCounter:
		return "wrongBlockSequenceCounter"
	case NRCResponsePending:
		return "requestCorrectlyReceivedResponsePending"
	case NRCSubFunctionNotSupportedInActiveSession:
		return "subFunctionNotSupportedInActiveSession"
	case NRCServiceNotSupportedInActiveSession:
		return "serviceNotSupportedInActiveSession"
	default:
		return "unknown"
	}
}
