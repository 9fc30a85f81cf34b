/*
Package ports defines the driven ports (interfaces) of the deckhand agent.

These interfaces decouple the command core from storage backends and from the
collaborators that live outside it (host metadata, addons, configuration tooling).

# Key Interfaces

  - StageStore: Persists the stage watermark of each request id.
  - DistributedLocker: Serialises deliveries of the same request id.
  - EnvironmentMetadata: Host identity, command definitions, leader election.
  - ConfigRunner: Applies configuration sets for template commands.
  - Addons: Before/after hooks and definition overrides.
*/
package ports
