// Package logging wires structured JSON logging (log/slog) with size-based
// file rotation. Records go to ~/.codetrawl/logs/codetrawl.log and stderr;
// the --debug flag lowers the level from info to debug.
package logging
