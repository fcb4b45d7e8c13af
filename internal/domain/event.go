package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"

	apperrors "pet_chat/pkg/errors"
)

const (
	EventEnterRoom    = "enterRoom"
	EventMessage      = "message"
	EventMediaMessage = "mediaMessage"
	EventActivity     = "activity"
	EventChatHistory  = "chatHistory"
	EventUserList     = "userList"
	EventRoomList     = "roomList"
	EventJoinedRoom   = "joinedRoom"
)

// AdminName is the sender shown on relay-generated notices.
const AdminName = "Admin"

// TimeFormat is the ISO-8601 layout used for every timestamp on the wire.
const TimeFormat = "2006-01-02T15:04:05.000Z07:00"

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	if err := v.RegisterValidation("notblank", validators.NotBlank); err != nil {
		panic(err)
	}
	return v
}

// Envelope frames every event on the websocket in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// ClientEvent is one of EnterRoom, SendMessage, SendMedia or Activity.
type ClientEvent interface {
	EventName() string
}

type EnterRoom struct {
	Name   string    `json:"name" validate:"required,notblank,max=50"`
	Room   RoomLabel `json:"room" validate:"required,notblank,max=100"`
	ChatID ChatKey   `json:"chatId" validate:"max=100"`
	UserID UserID    `json:"userId" validate:"gte=0"`
}

type SendMessage struct {
	Name    string  `json:"name" validate:"max=50"`
	Text    string  `json:"text" validate:"required,notblank,max=5000"`
	UserID  UserID  `json:"userId" validate:"gte=0"`
	ChatID  ChatKey `json:"chatId" validate:"max=100"`
	LocalID string  `json:"localId" validate:"max=100"`
}

type SendMedia struct {
	Name      string  `json:"name" validate:"max=50"`
	UserID    UserID  `json:"userId" validate:"gte=0"`
	ChatID    ChatKey `json:"chatId" validate:"max=100"`
	MediaURL  string  `json:"mediaUrl" validate:"required,notblank,max=2048"`
	MediaType string  `json:"mediaType" validate:"required,max=50"`
	LocalID   string  `json:"localId" validate:"max=100"`
}

type Activity struct {
	Name string `json:"name" validate:"max=50"`
}

func (EnterRoom) EventName() string   { return EventEnterRoom }
func (SendMessage) EventName() string { return EventMessage }
func (SendMedia) EventName() string   { return EventMediaMessage }
func (Activity) EventName() string    { return EventActivity }

// DecodeClientEvent parses and validates one inbound frame. Anything that is
// not a well-formed, known event yields an error wrapping ErrInvalidEvent.
func DecodeClientEvent(raw []byte) (ClientEvent, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidEvent, err)
	}

	var evt ClientEvent
	var err error
	switch env.Event {
	case EventEnterRoom:
		var e EnterRoom
		err = decodeData(env.Data, &e)
		evt = e
	case EventMessage:
		var e SendMessage
		err = decodeData(env.Data, &e)
		evt = e
	case EventMediaMessage:
		var e SendMedia
		err = decodeData(env.Data, &e)
		evt = e
	case EventActivity:
		var e Activity
		err = decodeActivity(env.Data, &e)
		evt = e
	default:
		return nil, fmt.Errorf("%w: unknown event %q", apperrors.ErrInvalidEvent, env.Event)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", apperrors.ErrInvalidEvent, env.Event, err)
	}
	if err := validate.Struct(evt); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", apperrors.ErrInvalidEvent, env.Event, err)
	}
	return evt, nil
}

func decodeData(data json.RawMessage, dst interface{}) error {
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return fmt.Errorf("missing data")
	}
	return json.Unmarshal(data, dst)
}

// decodeActivity accepts either {"name": "..."} or a bare string.
func decodeActivity(data json.RawMessage, dst *Activity) error {
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if data[0] == '"' {
		return json.Unmarshal(data, &dst.Name)
	}
	return json.Unmarshal(data, dst)
}

// UnmarshalJSON accepts the chat id as a string or a number.
func (k *ChatKey) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*k = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*k = ChatKey(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("chatId must be a string or number")
	}
	*k = ChatKey(n.String())
	return nil
}

// UnmarshalJSON accepts the user id as a number or a numeric string.
func (u *UserID) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*u = 0
		return nil
	}
	s := string(b)
	if len(b) > 0 && b[0] == '"' {
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if s == "" {
			*u = 0
			return nil
		}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("userId must be an integer")
	}
	*u = UserID(n)
	return nil
}

// ServerEvent is an outbound event before framing.
type ServerEvent struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

func (e ServerEvent) Encode() ([]byte, error) {
	return json.Marshal(e)
}

type MessagePayload struct {
	Name      string  `json:"name"`
	Text      *string `json:"text"`
	MediaURL  *string `json:"mediaUrl"`
	MediaType *string `json:"mediaType"`
	Time      string  `json:"time"`
	LocalID   string  `json:"localId,omitempty"`
}

type HistoryItem struct {
	Name      string  `json:"name"`
	Text      *string `json:"text"`
	MediaURL  *string `json:"mediaUrl"`
	MediaType *string `json:"mediaType"`
	Time      string  `json:"time"`
}

type UserListEntry struct {
	ID   ConnectionID `json:"id"`
	Name string       `json:"name"`
	Room RoomLabel    `json:"room"`
}

type UserListPayload struct {
	Users []UserListEntry `json:"users"`
}

type RoomListPayload struct {
	Rooms []RoomLabel `json:"rooms"`
}

type JoinedRoomPayload struct {
	Room   RoomLabel `json:"room"`
	ChatID ChatKey   `json:"chatId"`
}

func NewTextEvent(name, text, localID string, at time.Time) ServerEvent {
	return ServerEvent{Event: EventMessage, Data: MessagePayload{
		Name:    name,
		Text:    &text,
		Time:    at.Format(TimeFormat),
		LocalID: localID,
	}}
}

func NewMediaEvent(name, mediaURL, mediaType, localID string, at time.Time) ServerEvent {
	return ServerEvent{Event: EventMessage, Data: MessagePayload{
		Name:      name,
		MediaURL:  &mediaURL,
		MediaType: &mediaType,
		Time:      at.Format(TimeFormat),
		LocalID:   localID,
	}}
}

// NewNoticeEvent is a relay-generated message from AdminName.
func NewNoticeEvent(text string, at time.Time) ServerEvent {
	return NewTextEvent(AdminName, text, "", at)
}

// NewHistoryEvent expects entries already ordered oldest first.
func NewHistoryEvent(entries []HistoryEntry) ServerEvent {
	return ServerEvent{Event: EventChatHistory, Data: NewHistoryItems(entries)}
}

// NewHistoryItems converts stored entries to their wire form. The result is
// never nil so it encodes as [].
func NewHistoryItems(entries []HistoryEntry) []HistoryItem {
	items := make([]HistoryItem, 0, len(entries))
	for _, e := range entries {
		items = append(items, HistoryItem{
			Name:      e.SenderName,
			Text:      e.Text,
			MediaURL:  e.MediaURL,
			MediaType: e.MediaType,
			Time:      e.SentAt.Format(TimeFormat),
		})
	}
	return items
}

func NewUserListEvent(conns []Connection) ServerEvent {
	users := make([]UserListEntry, 0, len(conns))
	for _, c := range conns {
		users = append(users, UserListEntry{ID: c.ID, Name: c.Name, Room: c.Room})
	}
	return ServerEvent{Event: EventUserList, Data: UserListPayload{Users: users}}
}

func NewRoomListEvent(rooms []RoomLabel) ServerEvent {
	if rooms == nil {
		rooms = []RoomLabel{}
	}
	return ServerEvent{Event: EventRoomList, Data: RoomListPayload{Rooms: rooms}}
}

func NewActivityEvent(name string) ServerEvent {
	return ServerEvent{Event: EventActivity, Data: name}
}

func NewJoinedRoomEvent(room RoomLabel, key ChatKey) ServerEvent {
	return ServerEvent{Event: EventJoinedRoom, Data: JoinedRoomPayload{Room: room, ChatID: key}}
}
