/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Command admissiond is a reference HTTP server that puts the admission governor
// (rate limiting and memoized results) in front of a stock prediction API.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
