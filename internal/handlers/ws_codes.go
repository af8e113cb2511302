// internal/handlers/ws_codes.go
package handlers

// Custom WebSocket close codes used by the notification socket.
const (
	BadSubprotocolError  = 3000 // Client connected with an unsupported subprotocol.
	SubscribeFailedError = 3004 // The user's notification channel could not be subscribed.
)
