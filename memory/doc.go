// Package memory contains core.Memory implementations. Agents depend on the
// core.Memory interface; pick an implementation (like the in-memory turn log
// below) at wiring time.
package memory
