// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package uds

// BuildReadDataByIdentifier builds a ReadDataByIdentifier (0x22) request for
// a single data identifier: [0x22, DID high, DID low].
func BuildReadDataByIdentifier(did uint16) []byte {
	return []byte{SIDReadDataByIdentifier, byte(did >> 8), byte(did)}
}
