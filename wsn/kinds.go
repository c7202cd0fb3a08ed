// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package wsn holds the WS-BaseNotification request catalog: one fixed SOAP
// envelope per message kind, rendered by positional substitution.
package wsn

import (
	"errors"
	"fmt"
)

// MessageKind identifies one WS-Notification request envelope.
type MessageKind uint8

const (
	Notify MessageKind = iota + 1
	NotifyMultiple
	NotifyLarge
	Subscribe
	SubscribeFullTopic
	SubscribeNoTopic
	SubscribeXPathTopic
	SubscribeXPathFilter
	SubscribeSimpleTopic
	SubscribeUseRaw
	Register
	GetCurrentMessage
	Renew
	Pause
	Resume
	Unsubscribe
	Unregister
)

var (
	ErrUnknownKind  = errors.New("unknown message kind")
	ErrSlotMismatch = errors.New("template slot count mismatch")
)

var kindNames = map[MessageKind]string{
	Notify:               "notify",
	NotifyMultiple:       "notify-multiple",
	NotifyLarge:          "notify-large",
	Subscribe:            "subscribe",
	SubscribeFullTopic:   "subscribe-fulltopic",
	SubscribeNoTopic:     "subscribe-notopic",
	SubscribeXPathTopic:  "subscribe-xpathtopic",
	SubscribeXPathFilter: "subscribe-xpath",
	SubscribeSimpleTopic: "subscribe-simpletopic",
	SubscribeUseRaw:      "subscribe-useraw",
	Register:             "register",
	GetCurrentMessage:    "getcurrent",
	Renew:                "renew",
	Pause:                "pause",
	Resume:               "resume",
	Unsubscribe:          "unsubscribe",
	Unregister:           "unregister",
}

func (k MessageKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("MessageKind(%d)", uint8(k))
}

// Kinds returns every kind in declaration order.
func Kinds() []MessageKind {
	out := make([]MessageKind, 0, len(kindNames))
	for k := Notify; k <= Unregister; k++ {
		out = append(out, k)
	}
	return out
}

// Dialect is a WS-Topics topic expression dialect URI.
type Dialect string

const (
	DialectConcrete Dialect = "http://docs.oasis-open.org/wsn/t-1/TopicExpression/Concrete"
	DialectFull     Dialect = "http://docs.oasis-open.org/wsn/t-1/TopicExpression/Full"
	DialectSimple   Dialect = "http://docs.oasis-open.org/wsn/t-1/TopicExpression/Simple"
	DialectXPath    Dialect = "http://www.w3.org/TR/1999/REC-xpath-19991116"
)

// TopicDialect reports the dialect a kind uses for its topic slot, if any.
// notify-multiple reports the dialect of its first block.
func TopicDialect(k MessageKind) (Dialect, bool) {
	switch k {
	case Notify, SubscribeFullTopic:
		return DialectFull, true
	case SubscribeSimpleTopic:
		return DialectSimple, true
	case SubscribeXPathTopic:
		return DialectXPath, true
	case NotifyMultiple, NotifyLarge, Subscribe, SubscribeXPathFilter, SubscribeUseRaw, Register, GetCurrentMessage:
		return DialectConcrete, true
	default:
		return "", false
	}
}
