// Command livewscat pipes standard input to a WebSocket server and prints
// what the server sends back, reconnecting whenever the connection drops.
//
//	echo hello | livewscat ws://localhost:8080/echo
//
// Configuration comes from an optional TOML file (--config), LIVEWS_
// environment variables and flags, in increasing order of precedence.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
