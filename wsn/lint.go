// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package wsn

import "strings"

// LintTopic returns advisory notes about a topic that a broker is likely to
// reject under dialect. Requests are sent regardless.
func LintTopic(dialect Dialect, topic string) []string {
	var notes []string
	if topic == "" {
		notes = append(notes, "topic is empty")
	}
	switch dialect {
	case DialectSimple:
		if strings.Contains(topic, "/") {
			notes = append(notes, "simple topic expressions have no child paths but topic contains '/'")
		}
	case DialectConcrete:
		if strings.ContainsAny(topic, "*|") || strings.Contains(topic, "//") {
			notes = append(notes, "concrete topic expressions cannot contain wildcards or unions")
		}
	}
	if strings.ContainsAny(topic, "<&") {
		notes = append(notes, "topic contains XML markup characters and is substituted unescaped")
	}
	return notes
}
