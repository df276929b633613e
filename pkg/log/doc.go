// Package log provides structured logging for the gateway using
// zerolog. Init configures the global logger's level and output
// format; WithComponent, WithListener, WithPool, and WithNode return
// child loggers carrying the matching field, for call sites that want
// that context attached to every subsequent line without repeating it.
package log
