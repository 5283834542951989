// Package decode converts raw inverter register words into physical values.
//
// Everything here is pure: no I/O, no logging, no shared state. It covers:
//   - Per-channel scaling of 16-bit analog registers
//   - Packing two 16-bit registers into a 32-bit fault bitmask (high word first)
//   - Decoding active fault bits into operator-facing descriptions
//   - Parsing the operator-edited device id list ("1,3-5,7")
//
// ParseIDList never fails as a whole. A malformed token is reported as a
// diagnostic and the remaining valid ids are still returned, so one typo in
// the slave_ids setting cannot stop polling of every other inverter.
package decode
