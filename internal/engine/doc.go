// Package engine implements the Mutation Queue and the Mutation Processor.
//
// Producers (chat handlers, the scheduler, the CLI) call Enqueue from any
// goroutine. Each request is stamped with a request ID and a monotonic seq
// and appended to an unbounded FIFO. Enqueue never touches storage.
//
// A single goroutine runs Engine.Run. It dequeues one request at a time,
// opens one storage transaction, dispatches on the request type and commits.
// A request either commits all of its writes or none of them.
//
// Storage contention (SQLITE_BUSY) is retried with exponential backoff:
// three attempts, waiting 1s then 2s. After that the request is dropped with
// PROCESSING_FAILED and the loop moves on. Validation failures are never
// retried and leave storage untouched.
//
// Every request ends in a Result delivered through its Ticket: applied,
// duplicate, rejected, dropped or failed.
package engine
