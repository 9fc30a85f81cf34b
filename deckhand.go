package deckhand

// Version is the agent version, set at build time with
// -ldflags "-X github.com/aretw0/deckhand.Version=...".
var Version = "dev"
