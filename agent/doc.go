// Package agent defines the Descriptor, the immutable configuration record
// for a single agent: name, system prompt, model binding, tool set, handoff
// permissions and concurrency hints. Descriptors carry no runtime state;
// execution lives in the runner package.
package agent
