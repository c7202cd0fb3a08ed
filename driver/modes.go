// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package driver

import (
	"errors"
	"fmt"
	"sort"

	"github.com/absmach/bullrider/wsn"
)

// ErrUnknownMode is returned for a mode name outside the mode table.
var ErrUnknownMode = errors.New("unknown mode")

// Reference names which broker-issued reference a mode addresses.
type Reference uint8

const (
	NoReference Reference = iota
	SubscriptionReference
	PublisherReference
)

// Mode is one entry of the mode table.
type Mode struct {
	Name        string
	Description string
	// Kind is zero for "all", which sends a sequence of kinds.
	Kind      wsn.MessageKind
	Reference Reference
	// NeedsWAN is set when the envelope carries this machine's address.
	NeedsWAN bool
	Looped   bool
}

var modes = map[string]Mode{
	"all":                   {Description: "All available", NeedsWAN: true},
	"notify":                {Description: "Notification", Kind: wsn.Notify},
	"massnotify":            {Description: "Mass Notification", Kind: wsn.Notify, Looped: true},
	"full":                  {Description: "Mass Notification", Kind: wsn.Notify, Looped: true},
	"multinotify":           {Description: "MultiNotification", Kind: wsn.NotifyMultiple},
	"largenotify":           {Description: "Large (9MB) Notification", Kind: wsn.NotifyLarge},
	"subscribe":             {Description: "Subscribe", Kind: wsn.Subscribe, NeedsWAN: true},
	"subscribe-xpath":       {Description: "Subscribe (XPATH)", Kind: wsn.SubscribeXPathFilter, NeedsWAN: true},
	"subscribe-notopic":     {Description: "Subscribe (No Topic)", Kind: wsn.SubscribeNoTopic, NeedsWAN: true},
	"subscribe-simpletopic": {Description: "Subscribe (SimpleTopic)", Kind: wsn.SubscribeSimpleTopic, NeedsWAN: true},
	"subscribe-useraw":      {Description: "Subscribe (UseRaw=true)", Kind: wsn.SubscribeUseRaw, NeedsWAN: true},
	"subscribe-fulltopic":   {Description: "Subscribe (FullTopic)", Kind: wsn.SubscribeFullTopic, NeedsWAN: true},
	"subscribe-xpathtopic":  {Description: "Subscribe (XPATH Topic)", Kind: wsn.SubscribeXPathTopic, NeedsWAN: true},
	"register":              {Description: "PublisherRegistration", Kind: wsn.Register, NeedsWAN: true},
	"getcurrent":            {Description: "GetCurrentMessage", Kind: wsn.GetCurrentMessage},
	"renew":                 {Description: "RenewSubscription", Kind: wsn.Renew, Reference: SubscriptionReference},
	"pause":                 {Description: "PauseSubscription", Kind: wsn.Pause, Reference: SubscriptionReference},
	"resume":                {Description: "ResumeSubscription", Kind: wsn.Resume, Reference: SubscriptionReference},
	"unsubscribe":           {Description: "Unsubscribe", Kind: wsn.Unsubscribe, Reference: SubscriptionReference},
	"unregister":            {Description: "DestroyRegistration", Kind: wsn.Unregister, Reference: PublisherReference},
}

// Resolve looks up name in the mode table.
func Resolve(name string) (Mode, error) {
	m, ok := modes[name]
	if !ok {
		return Mode{}, fmt.Errorf("%w: %q", ErrUnknownMode, name)
	}
	m.Name = name
	return m, nil
}

// Modes returns the mode table sorted by name.
func Modes() []Mode {
	out := make([]Mode, 0, len(modes))
	for name := range modes {
		m, _ := Resolve(name)
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// EndpointPath returns the request path addressing ref, or "/" when ref is empty.
func EndpointPath(ref string) string {
	if ref == "" {
		return "/"
	}
	return "/" + ref
}

func mustMode(name string) Mode {
	m, err := Resolve(name)
	if err != nil {
		panic(err)
	}
	return m
}
