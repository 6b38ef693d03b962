// Package main implements the sokq command line interface: a
// persistent background task queue for LLM prompt-processing jobs,
// with a daemon that drains the queue and commands to submit, inspect,
// and remove tasks.
package main

import "os"

func main() {
	os.Exit(run(os.Args[1:]))
}
