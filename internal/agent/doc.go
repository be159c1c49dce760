// Package agent implements the client-side runtime.
//
// # Overview
//
// An Agent registers itself with the operator over the bus, then serves
// commands from its per-client command subject and publishes results to its
// response subject, with a heartbeat beacon running alongside.
//
// # Lifecycle
//
//	agent, err := agent.New(agent.Config{Conn: conn})
//	err = agent.Run(ctx)
//
// Run performs the registration handshake first. While no operator is
// listening (the bus reports no responders), registration retries forever
// with exponential backoff: 2s, 3s, 4.5s, ... capped at 60s. Any other
// registration failure aborts Run. After registration two loops run until a
// Shutdown command arrives or ctx is cancelled:
//
//   - command loop: receive, decode, dispatch, publish result
//   - heartbeat loop: publish the client id every interval (default 30s)
//
// Run joins both loops before returning; both stop paths return nil.
//
// # Dispatch
//
// Every decoded command produces exactly one CommandResult, including
// Shutdown, which is acknowledged before the agent stops. Once shutdown is
// signalled no further queued command is dispatched. Undecodable payloads are
// logged and dropped without a reply.
package agent
