package gateway

// Wire types mirror the dumb server's JSON payloads. Timestamps are
// millisecond epochs as sent by the server.

// FileAttachment describes an uploaded file embedded in a message. The
// download URL is fetched by out-of-core code.
type FileAttachment struct {
	Filename     string `json:"filename"`
	OriginalName string `json:"originalName"`
	Mimetype     string `json:"mimetype"`
	Size         int64  `json:"size"`
	DownloadURL  string `json:"downloadUrl"`
}

// VoiceAttachment describes a recorded voice message.
type VoiceAttachment struct {
	Filename    string  `json:"filename"`
	Duration    float64 `json:"duration"`
	DownloadURL string  `json:"downloadUrl"`
}

// Message is a single chat message. ID is server-assigned and globally
// unique within a channel.
type Message struct {
	ID      string           `json:"id"`
	From    string           `json:"from"`
	Text    string           `json:"text"`
	TS      int64            `json:"ts"`
	ReplyTo string           `json:"replyTo,omitempty"`
	File    *FileAttachment  `json:"file,omitempty"`
	Voice   *VoiceAttachment `json:"voice,omitempty"`
}

// Channel is a chat channel summary.
type Channel struct {
	Name        string `json:"name"`
	CreatedBy   string `json:"createdBy"`
	CreatedAt   int64  `json:"createdAt"`
	MemberCount int    `json:"memberCount"`
}

// Member is a user joined to a channel.
type Member struct {
	Username string `json:"username"`
	Avatar   string `json:"avatar,omitempty"`
}

// LoginRequest is the /api/login body. TwoFactorToken and SessionID are set
// only on the second leg of a 2FA login.
type LoginRequest struct {
	Username       string `json:"username"`
	Password       string `json:"password"`
	TwoFactorToken string `json:"twoFactorToken,omitempty"`
	SessionID      string `json:"sessionId,omitempty"`
}

// LoginResponse carries either a token, a 2FA challenge, or a failure reason.
type LoginResponse struct {
	Success     bool   `json:"success"`
	Token       string `json:"token,omitempty"`
	Requires2FA bool   `json:"requires2FA,omitempty"`
	SessionID   string `json:"sessionId,omitempty"`
	Error       string `json:"error,omitempty"`
}

// BasicResponse is the common {success, error} envelope.
type BasicResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// ChannelsResponse is the /api/channels payload.
type ChannelsResponse struct {
	Success  bool      `json:"success"`
	Channels []Channel `json:"channels"`
	Error    string    `json:"error,omitempty"`
}

// CreateChannelResponse is the /api/channels/create payload.
type CreateChannelResponse struct {
	Success bool   `json:"success"`
	Channel string `json:"channel"`
	Error   string `json:"error,omitempty"`
}

// MembersResponse is the /api/channels/members payload.
type MembersResponse struct {
	Success bool     `json:"success"`
	Members []Member `json:"members"`
	Error   string   `json:"error,omitempty"`
}

// MessagesResponse is the /api/messages payload, newest first.
type MessagesResponse struct {
	Success  bool      `json:"success"`
	Messages []Message `json:"messages"`
	Error    string    `json:"error,omitempty"`
}

// SendMessageResponse is the /api/message payload; Message is the stored
// message with its server-assigned id.
type SendMessageResponse struct {
	Success bool     `json:"success"`
	Message *Message `json:"message"`
	Error   string   `json:"error,omitempty"`
}
