// Package cli implements walletctl, the command-line client of the wallet
// server.
//
// Key tools (keygen, verify, reencrypt) work offline on sealed seeds.
// Everything else talks to the server over gRPC and keeps the token pair
// in a session file between invocations.
package cli
