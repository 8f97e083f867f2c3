// Package bridge lets a remote page act as the DOM host for components.
//
// The page opens a WebSocket and mounts component instances by id. The
// server renders them on its in-memory tree and pushes the composed
// shadow HTML after every render. DOM events, attribute changes and
// visibility changes flow back from the page.
package bridge

import (
	"github.com/conneroisu/kiln/internal/template"
)

// MessageType names a message in either direction.
type MessageType string

// Page to server.
const (
	MsgMount   MessageType = "mount"
	MsgUnmount MessageType = "unmount"
	MsgAttr    MessageType = "attr"
	MsgVisible MessageType = "visible"
	MsgEvent   MessageType = "event"
)

// Server to page.
const (
	PushReady MessageType = "ready"
	PushPatch MessageType = "patch"
	PushEmit  MessageType = "emit"
	PushError MessageType = "error"
)

// Message is sent by the page. Which fields are used depends on Type:
//
//	mount:   ID, Selector, Attrs
//	unmount: ID
//	attr:    ID, Name, Value
//	visible: ID, Visible
//	event:   ID, Event, Target, Detail
//
// Target is a path of child indexes from the instance's shadow root, with
// "s" stepping into a nested shadow root.
type Message struct {
	Type     MessageType       `json:"type" msgpack:"type"`
	ID       string            `json:"id,omitempty" msgpack:"id,omitempty"`
	Selector string            `json:"selector,omitempty" msgpack:"selector,omitempty"`
	Attrs    map[string]string `json:"attrs,omitempty" msgpack:"attrs,omitempty"`
	Name     string            `json:"name,omitempty" msgpack:"name,omitempty"`
	Value    string            `json:"value,omitempty" msgpack:"value,omitempty"`
	Visible  bool              `json:"visible,omitempty" msgpack:"visible,omitempty"`
	Event    string            `json:"event,omitempty" msgpack:"event,omitempty"`
	Target   string            `json:"target,omitempty" msgpack:"target,omitempty"`
	Detail   any               `json:"detail,omitempty" msgpack:"detail,omitempty"`
}

// Push is sent by the server.
type Push struct {
	Type MessageType `json:"type" msgpack:"type"`
	ID   string      `json:"id,omitempty" msgpack:"id,omitempty"`
	// HTML is the composed shadow tree of the instance.
	HTML string `json:"html,omitempty" msgpack:"html,omitempty"`
	// Bindings are the events the page must forward, across the instance
	// and every component nested in it.
	Bindings []template.Binding `json:"bindings,omitempty" msgpack:"bindings,omitempty"`
	Name     string             `json:"name,omitempty" msgpack:"name,omitempty"`
	Detail   any                `json:"detail,omitempty" msgpack:"detail,omitempty"`
	Error    string             `json:"error,omitempty" msgpack:"error,omitempty"`
	Session  string             `json:"session,omitempty" msgpack:"session,omitempty"`
}
