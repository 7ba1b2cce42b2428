// Package capturer transparently captures everything written to the standard
// output and error streams of the current process and of any subprocess it
// spawns, optionally relaying the output to the real terminal in real time.
//
// Capture works by allocating a pseudo terminal, redirecting the standard
// descriptors onto its slave side, and draining the master side from a
// supervised background worker into an anonymous backing file. Because the
// redirection happens at the descriptor table level (dup2), output from
// subprocesses is captured exactly like output from the current process.
//
// A session captures stdout and stderr either merged through a single pseudo
// terminal (the default) or split through two, in which case the live view is
// recombined line by line so the two streams never interleave mid-line.
package capturer
