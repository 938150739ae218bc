// Package runlock keeps two orchestrator runs from working on the same
// directory at once.
//
// The FileRepository stores the Record of the running invocation as JSON on
// disk. Acquire creates it exclusively and replaces records left behind by
// processes that are no longer alive.
package runlock
