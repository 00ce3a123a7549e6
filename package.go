// Package nanoio provides a minimal cooperative I/O runtime: a task
// scheduler and a readiness-based socket reactor that let many tasks
// share one thread of control while performing non-blocking network
// operations.
//
// Key components:
//
//   - Loop: Owns the FIFO ready queue and the reactor. Run drives the
//     loop either until every task has finished or until a designated
//     main task has finished.
//
//   - Task: A coroutine-backed invocation of a Func. Tasks suspend by
//     yielding a trap to their loop and are resumed with the answer.
//
//   - Traps: Spawn and CurrentLoop are answered synchronously, without
//     letting other tasks run. Waiting for a socket to become readable
//     or writable is the only point at which tasks interleave.
//
//   - Socket primitives: Accept, Recv, Send, SendAll and RecvUntil
//     operate on caller-owned non-blocking sockets and suspend the
//     calling task whenever the underlying system call would block.
//
// Errors returned by a background task are dropped; the error of the
// main task is returned from Run. EOF is reported as an empty read and
// a missing delimiter as index -1, never as errors.
//
// The package targets Unix systems. Readiness is tracked with epoll on
// Linux and poll(2) elsewhere.
package nanoio
