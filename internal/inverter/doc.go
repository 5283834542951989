// Package inverter reads one polling round from a solar inverter over
// Modbus TCP.
//
// A round is a single 4-register analog block (power, voltage, current,
// temperature) followed by best-effort reads of the fault register groups.
// The analog block is retried a bounded number of times and its failure
// ends the round for that device. A fault group that cannot be read does
// not fail the round; it is reported as a Degraded FaultReading with value 0.
//
// The device link is owned by a Conn, a small state machine
// (Disconnected, Connecting, Connected) that the scheduler drives through
// EnsureConnected, Reconfigure and Close. A Conn is not safe for concurrent
// reads; the scheduler is its only user.
package inverter
