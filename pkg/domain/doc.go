/*
Package domain contains the core data model of the deckhand agent.

It defines the command request delivered by the control plane, the stage/action
pipeline definitions, the command result and its progress events, and the
failure taxonomy shared by every layer. This package is kept pure and free of
I/O, following Hexagonal Architecture principles.

# Key Entities

  - CommandRequest: One command (or one stage of a command) to execute.
  - CommandDefinition: The ordered stages and actions of a named command.
  - CommandResult: Status, message, return code and events of a dispatch.
  - Error / ActivityError: Tagged failures; activity failures carry a path.
*/
package domain
