// Package miio implements the encrypted UDP protocol spoken by Xiaomi miio
// devices on port 54321.
//
// This package manages:
//   - The hello handshake that yields the device id and clock stamp
//   - AES-128-CBC encryption keyed from the device token
//   - JSON-RPC framing with request ids cycling 1..9999
//   - Retries with a fresh handshake after a timeout
//
// # Packet Format
//
// Every datagram starts with a 32-byte header followed by the encrypted
// JSON payload:
//
//	magic(2) length(2) unknown(4) device_id(4) stamp(4) checksum(16) payload
//
// The checksum is md5(header[0:16] || token || payload). The AES key is
// md5(token) and the IV is md5(key || token).
//
// # Errors
//
// Transport failures (timeouts, closed sockets) are plain errors. Failures
// where the device answered but the answer was unusable are reported as
// [*DeviceError] or [*ReplyError]; both implement ProtocolError() so callers
// can tell "unreachable" from "reachable but refused" without importing
// this package.
//
// # Usage
//
//	client, err := miio.Dial(ctx, miio.Config{Host: "192.168.1.50", Token: token})
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	values, err := client.GetProperties(ctx, []string{"power", "mode"}, 6)
package miio
