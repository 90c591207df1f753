// Package mcp exposes autopatchd to MCP clients over stdio.
//
// The tools mirror the HTTP API: operators and coding agents can inspect
// tickets, preview which autopatch a ticket would get, dispatch it, decide
// pending approvals and check remote commands against the whitelist. Ticket
// text returned to clients passes through the secret scrubber first.
package mcp
