// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package wsn

import (
	"encoding/xml"
	"fmt"
	"strings"
)

func sprintf(format string, args ...any) string {
	return fmt.Sprintf(format, args...)
}

// Catalog renders envelopes from the fixed template set.
//
// The zero value substitutes values verbatim, so a value carrying '<' or '&'
// yields a malformed document. Set Escape to XML-escape every value first.
type Catalog struct {
	Escape bool
}

// Render substitutes values, in order, into the template for kind.
// The number of values must equal Slots(kind).
func (c Catalog) Render(kind MessageKind, values ...string) (string, error) {
	tmpl, ok := catalog[kind]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	if len(values) != tmpl.slots {
		return "", fmt.Errorf("%w: %s takes %d values, got %d", ErrSlotMismatch, kind, tmpl.slots, len(values))
	}

	args := make([]any, len(values))
	for i, v := range values {
		if c.Escape {
			v = escape(v)
		}
		args[i] = v
	}
	if len(args) == 0 {
		return tmpl.text, nil
	}
	return fmt.Sprintf(tmpl.text, args...), nil
}

// Render renders kind with verbatim substitution.
func Render(kind MessageKind, values ...string) (string, error) {
	return Catalog{}.Render(kind, values...)
}

// Slots returns the number of values kind expects, or -1 for an unknown kind.
func Slots(kind MessageKind) int {
	tmpl, ok := catalog[kind]
	if !ok {
		return -1
	}
	return tmpl.slots
}

// Action returns the WS-Addressing action header value of kind.
func Action(kind MessageKind) string {
	return catalog[kind].action
}

func escape(s string) string {
	var b strings.Builder
	// strings.Builder never returns a write error.
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}
