/*
Package deckhand is the execution core of a host deployment agent.

A control plane delivers command requests to every host of a stack. The agent
decides whether a request applies to this host and follows the stage order,
runs it as a tree of supervised activities and answers with a size-bounded
status report.

# Concept

Commands with a definition run as a pipeline of stages; each stage is a list
of actions (built-in infra scripts, hook directories or shell commands), and
each action runs as a nested activity with its own deadline and retry
budget. Commands without a definition are handed to the configuration
orchestration tool as a single call. Staged commands arrive one stage per
request; the agent persists a per-request stage watermark so stages run
exactly in order across restarts.

# Usage

The deckhand binary runs one request and prints the report:

	deckhand run '{"command_name":"CMD-AppDeploy","request_id":"r1","stage_num":0}'

or serves the same over HTTP:

	deckhand serve

Configuration comes from DECKHAND_* environment variables; see
internal/config.
*/
package deckhand
