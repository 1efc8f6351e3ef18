// internal/app/features/chat/types.go
package chat

type postRequest struct {
	Text string `json:"text" validate:"max=4000"`
}

type readResponse struct {
	Updated int64 `json:"updated"`
}
