// Package conntrack tracks active inbound connections against a
// process-wide cap.
package conntrack
