// Package semaphore implements the classic semaphore manager: attribute
// validation, the object table, and routing of directives either to the
// local variant core (package sem) or, for ids owned by another node, to
// the MP semaphore packets.
//
// Remote obtains block on the owning node through a proxy thread that
// stands in for the requesting thread; see package mp.
package semaphore
