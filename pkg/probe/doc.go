// Package probe provides the probe wire protocol: the command/response
// vocabulary, the byte link, the firmware side dispatcher and a host client.
package probe

// The probe protocol runs over a point-to-point byte channel (e.g. a serial
// port). The host sends single-byte commands, optionally followed by a
// little-endian 16 or 32-bit parameter. The probe answers every command with
// a single-byte response code, except while streaming, when it writes a
// continuous sequence of 16-bit little-endian samples until the host asks
// it to stop.
//
// Producer: probe firmware (Dispatcher)
// Consumer: host (Client)
