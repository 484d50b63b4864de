package protocol

import (
	"encoding/hex"
	"time"

	"github.com/loqalabs/voicechat/internal/conversation"
)

// ChatRequest is the body of a text exchange.
type ChatRequest struct {
	Text string `json:"text"`
}

// ChatResponse is returned by both exchange endpoints. Pointers distinguish a
// missing field from an empty one.
type ChatResponse struct {
	ReplyText   *string `json:"replyText"`
	AudioBase64 *string `json:"audioBase64"`
}

// ErrorResponse is the body of every non-success response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Transcript is returned by the transcription endpoint.
type Transcript struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence,omitempty"`
}

// Capabilities reports which backends the relay has enabled.
type Capabilities struct {
	LLM      bool `json:"llm"`
	TTS      bool `json:"tts"`
	STT      bool `json:"stt"`
	FileChat bool `json:"fileChat"`
}

// Credentials carries an email/password sign-in or registration.
type Credentials struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName,omitempty"`
}

// User is the identity returned by the auth endpoints.
type User struct {
	UID         string `json:"uid"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
	PhotoURL    string `json:"photoURL,omitempty"`
}

// Multipart field names of the file exchange.
const (
	FieldFile     = "file"
	FieldQuestion = "question"
)

// Document store requests travel over the bus as request/reply.
type UpsertRequest struct {
	UserID       string                    `json:"user_id"`
	Conversation conversation.Conversation `json:"conversation"`
}

type DeleteRequest struct {
	UserID         string `json:"user_id"`
	ConversationID string `json:"conversation_id"`
}

type ListRequest struct {
	UserID string `json:"user_id"`
}

type ListReply struct {
	Conversations []conversation.Conversation `json:"conversations"`
	Error         string                      `json:"error,omitempty"`
}

type AckReply struct {
	Error string `json:"error,omitempty"`
}

// ChangeNotice is published after every write to a user's collection.
type ChangeNotice struct {
	UserID         string    `json:"user_id"`
	ConversationID string    `json:"conversation_id"`
	Deleted        bool      `json:"deleted"`
	Timestamp      time.Time `json:"timestamp"`
}

const (
	SubjectStoreUpsert        = "docstore.upsert"
	SubjectStoreDelete        = "docstore.delete"
	SubjectStoreList          = "docstore.list"
	SubjectStoreChangedPrefix = "docstore.changed"
)

// ChangedSubject returns the change-feed subject for a user.
func ChangedSubject(userID string) string {
	return SubjectStoreChangedPrefix + "." + SubjectToken(userID)
}

// SubjectToken encodes an arbitrary id as a single subject token. Distinct
// ids always give distinct tokens.
func SubjectToken(id string) string {
	if id == "" {
		return "_"
	}
	return hex.EncodeToString([]byte(id))
}
