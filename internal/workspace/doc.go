// Package workspace manages the per-run staging directory used to
// assemble non-native builds outside the primary checkout.
//
// Every run gets a freshly created directory under the system temp
// filesystem, named releng-<timestamp>-<uuid>, so concurrent runs can
// never share a staging area. Cleanup is deliberately left to the
// surrounding CI sandbox: artifact relocation copies matching files out
// and the directory itself is disposable.
package workspace
