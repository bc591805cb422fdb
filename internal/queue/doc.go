// Package queue consumes curation requests from NATS JetStream.
//
// A request is the JSON body {"license": "..."}. The [Consumer] resolves the subscriber,
// runs curation and settles every message exactly once:
//
//   - tracks added: [Ack]
//   - nothing added: [Requeue] after the configured delay, until the delivery cap is reached
//   - malformed body, unknown subscriber, failure or panic: [Reject]
//
// At most Concurrency messages are in flight at any time. [Stream] wires the consumer
// to a durable work-queue consumer and publishes requests.
package queue
