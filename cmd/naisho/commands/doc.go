// Package commands defines the naisho CLI.
//
// Commands
//
//   - share     Start a pairing as the initiator and send text
//   - receive   Answer a pairing as the responder and print text
//   - sas       Print the SAS for two fingerprints
//   - inspect   Decode a token
//   - words     Print display words for hex bytes
//
// # Implementation
//
// The root command loads the TOML config (if any), applies flag overrides,
// builds the pion logger factory and installs the word list source before
// any subcommand runs. Tokens are read one per line from stdin.
package commands
