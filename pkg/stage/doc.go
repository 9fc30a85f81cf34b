/*
Package stage guards the resumability of staged commands.

A staged command is delivered once per stage, each delivery in its own process
invocation. The Tracker decides whether a delivery is admissible by comparing
its stage number against the watermark persisted in a ports.StageStore, and
records the new watermark afterwards.

Deliveries of the same request id are serialised through a reference-counted
keyed mutex and, optionally, a ports.DistributedLocker shared by several agents.
*/
package stage
