//go:build !unix

package cmd

import "os"

// Resize notifications are unavailable; the size is read once at startup.
func notifyResize(ch chan<- os.Signal) {}
