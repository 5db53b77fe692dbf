/*
Package topology translates message types and delays into broker topology.

A delay is truncated to whole seconds and labelled HH_MM_SS (total hours, so multi-day delays
keep growing the hours field). Each (message type, label) pair owns a topic delay exchange and a
durable queue whose per-queue TTL equals the delay and whose dead-letter exchange is the message
type's publish exchange. Equal labels yield byte-identical names, so repeated calls reuse the
same broker resources.
*/
package topology
