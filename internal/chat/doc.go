/*
Package chat implements the streaming core of the relay.

# Architecture Overview

The chat package follows a layered design:

1. HTTP Handlers (handlers.go)
  - Validate chat API tokens and enforce per-user rate limits
  - Decode turn requests and map provider failures to status codes
  - Stream the multiplexer's output to the client with flushing

2. Continuation Controller (continuation.go)
  - Issues the first provider call and returns the response immediately
  - Watches each segment's finish reason; on "length" it appends the
    partial assistant text plus a fixed continuation directive and issues
    a follow-up call, bounded by MaxResponseSegments

3. Stream Multiplexer (multiplexer.go)
  - Presents one long-lived byte stream whose producer side can be
    switched between provider segments at chunk boundaries
  - Normalizes heterogeneous chunk shapes (bytes, text, structured
    values) into the outbound byte stream

4. Conversation State (conversation.go)
  - The append-only message list for one turn and the continuation
    constants

5. Usage Accounting (usage.go)
  - Per-user, per-model token accounting and model rate limits

# Request Flow

A chat turn flows through the system as follows:

 1. POST /chat arrives with messages, provider, model, and API keys
 2. The handler validates the bearer token and rate limits
 3. The controller selects the provider from the injected registry and
    issues the first streaming call
 4. The multiplexer becomes the response body; the client starts reading
 5. If the provider stops for hitting its output ceiling, the controller
    silently continues the reply through the same multiplexer
*/
package chat
