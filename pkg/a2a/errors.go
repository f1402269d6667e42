package a2a

// Error codes specific to the A2A task surface, in the application range
// (-32000..-32099) reserved by JSON-RPC for implementation-defined errors.
// The JSON-RPC reserved codes themselves (-32700..-32603) live in
// pkg/errors alongside the shared RpcError type every response carries.
const (
	ErrorCodeTaskNotFound                    = -32000
	ErrorCodeAuthFailed                      = -32001
	ErrorCodeTaskCreationFailed              = -32002
	ErrorCodePushNotificationNotSupported    = -32003
	ErrorCodePushNotificationConfigNotFound  = -32010
)
