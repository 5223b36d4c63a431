package document

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/marmos91/copad/pkg/ot"
)

// UserInfo describes a connected user for presence display.
type UserInfo struct {
	Name string `json:"name"`
	Hue  uint32 `json:"hue"`
}

// CursorData carries a user's cursor positions and selections, both measured
// in code points against the current document text.
type CursorData struct {
	Cursors    []uint32    `json:"cursors"`
	Selections [][2]uint32 `json:"selections"`
}

// UserOperation is one entry of the revision log: an operation tagged with
// the session ID of the client that produced it.
type UserOperation struct {
	ID        uint64        `json:"id"`
	Operation *ot.Operation `json:"operation"`
}

// EditMsg is the payload of a client Edit frame.
type EditMsg struct {
	Revision  int           `json:"revision"`
	Operation *ot.Operation `json:"operation"`
}

// UserInfoFrame is the inbound ClientInfo payload. Fields are pointers so a
// frame missing either one is rejected instead of defaulting silently.
type UserInfoFrame struct {
	Name *string `json:"name" validate:"required"`
	Hue  *uint32 `json:"hue" validate:"required"`
}

// ClientMsg is a message received from the client, externally tagged:
// exactly one field is set, and the field name is the tag on the wire.
type ClientMsg struct {
	Edit        *EditMsg       `json:"Edit,omitempty"`
	SetLanguage *string        `json:"SetLanguage,omitempty"`
	ClientInfo  *UserInfoFrame `json:"ClientInfo,omitempty"`
	CursorData  *CursorData    `json:"CursorData,omitempty"`
}

// HistoryMsg streams a contiguous slice of the revision log beginning at
// revision Start.
type HistoryMsg struct {
	Start      int             `json:"start"`
	Operations []UserOperation `json:"operations"`
}

// UserInfoMsg announces a user joining or updating their info. A nil Info is
// the tombstone broadcast when the user disconnects.
type UserInfoMsg struct {
	ID   uint64    `json:"id"`
	Info *UserInfo `json:"info"`
}

// UserCursorMsg broadcasts a user's cursor state.
type UserCursorMsg struct {
	ID   uint64     `json:"id"`
	Data CursorData `json:"data"`
}

// ServerMsg is a message sent to the client, externally tagged like
// ClientMsg.
type ServerMsg struct {
	Identity   *uint64        `json:"Identity,omitempty"`
	History    *HistoryMsg    `json:"History,omitempty"`
	Language   *string        `json:"Language,omitempty"`
	UserInfo   *UserInfoMsg   `json:"UserInfo,omitempty"`
	UserCursor *UserCursorMsg `json:"UserCursor,omitempty"`
}

func identityMsg(id uint64) ServerMsg {
	return ServerMsg{Identity: &id}
}

func historyMsg(start int, operations []UserOperation) ServerMsg {
	return ServerMsg{History: &HistoryMsg{Start: start, Operations: operations}}
}

func languageMsg(language string) ServerMsg {
	return ServerMsg{Language: &language}
}

func userInfoMsg(id uint64, info *UserInfo) ServerMsg {
	return ServerMsg{UserInfo: &UserInfoMsg{ID: id, Info: info}}
}

func userCursorMsg(id uint64, data CursorData) ServerMsg {
	return ServerMsg{UserCursor: &UserCursorMsg{ID: id, Data: data}}
}

// parseClientMsg decodes an inbound text frame. Unknown tags and frames
// carrying anything other than exactly one tag are protocol errors.
func parseClientMsg(data []byte) (*ClientMsg, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var msg ClientMsg
	if err := dec.Decode(&msg); err != nil {
		return nil, fmt.Errorf("failed to deserialize message: %w", err)
	}
	tags := 0
	for _, set := range []bool{
		msg.Edit != nil,
		msg.SetLanguage != nil,
		msg.ClientInfo != nil,
		msg.CursorData != nil,
	} {
		if set {
			tags++
		}
	}
	if tags != 1 {
		return nil, errors.New("message must carry exactly one tag")
	}
	return &msg, nil
}
