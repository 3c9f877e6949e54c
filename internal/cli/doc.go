// Package cli holds the terminal-facing helpers shared by the cco commands:
// exit code and hint mapping for errors, output formats, tables, spinners and
// confirmation prompts.
//
// Exit codes are stable and scripts may depend on them:
//
//	0  success
//	1  general error
//	2  authentication required
//	3  authentication failed
//	4  verification failed
//	5  network error
//	6  install failed
package cli
