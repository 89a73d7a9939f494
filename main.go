// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// udscope - UDS ReadDataByIdentifier poller
//
// A CLI tool for polling ECU data identifiers over ISO-TP and displaying
// the decoded values.

package main

import (
	"os"

	"github.com/Thermoquad/udscope/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
