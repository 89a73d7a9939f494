// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package uds implements the subset of Unified Diagnostic Services
// (ISO 14229) needed to poll scalar data identifiers: building
// ReadDataByIdentifier requests, interpreting positive and negative
// responses, and decoding big-endian scalar payloads.
package uds

// Service identifiers
const (
	SIDReadDataByIdentifier = 0x22
	SIDNegativeResponse     = 0x7F

	// PositiveResponseOffset is added to a service ID in its positive response
	PositiveResponseOffset = 0x40

	SIDReadDataByIdentifierResponse = SIDReadDataByIdentifier + PositiveResponseOffset
)

// Frame layout
const (
	// ReadDataByIdentifierRequestLength is the length of a single-DID request
	ReadDataByIdentifierRequestLength = 3

	// ReadDataByIdentifierHeaderLength covers the response SID and echoed DID
	ReadDataByIdentifierHeaderLength = 3
)

// Negative response codes (ISO 14229-1 Annex A)
const (
	NRCGeneralReject                          = 0x10
	NRCServiceNotSupported                    = 0x11
	NRCSubFunctionNotSupported                = 0x12
	NRCIncorrectMessageLength                 = 0x13
	NRCResponseTooLong                        = 0x14
	NRCBusyRepeatRequest                      = 0x21
	NRCConditionsNotCorrect                   = 0x22
	NRCRequestSequenceError                   = 0x24
	NRCNoResponseFromSubnetComponent          = 0x25
	NRCFailurePreventsExecution               = 0x26
	NRCRequestOutOfRange                      = 0x31
	NRCSecurityAccessDenied                   = 0x33
	NRCInvalidKey                             = 0x35
	NRCExceedNumberOfAttempts                 = 0x36
	NRCRequiredTimeDelayNotExpired            = 0x37
	NRCUploadDownloadNotAccepted              = 0x70
	NRCTransferDataSuspended                  = 0x71
	NRCGeneralProgrammingFailure              = 0x72
	NRCWrongBlockSequenceCounter              = 0x73
	NRCResponsePending                        = 0x78
	NRCSubFunctionNotSupportedInActiveSession = 0x7E
	NRCServiceNotSupportedInActiveSession     = 0x7F
)
