package jsonrpc

// Version is the only JSON-RPC protocol version this server speaks.
const Version = "2.0"
