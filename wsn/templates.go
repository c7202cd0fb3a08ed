// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package wsn

import "strings"

// WS-Addressing actions carried in the SOAP header of each envelope.
const (
	ActionNotify              = "http://docs.oasis-open.org/wsn/bw-2/NotificationConsumer/Notify"
	ActionSubscribe           = "http://docs.oasis-open.org/wsn/bw-2/NotificationProducer/SubscribeRequest"
	ActionGetCurrentMessage   = "http://docs.oasis-open.org/wsn/bw-2/NotificationProducer/GetCurrentMessageRequest"
	ActionRegisterPublisher   = "http://docs.oasis-open.org/wsn/brw-2/RegisterPublisher/RegisterPublisherRequest"
	ActionRenew               = "http://docs.oasis-open.org/wsn/bw-2/SubscriptionManager/RenewRequest"
	ActionPause               = "http://docs.oasis-open.org/wsn/bw-2/SubscriptionManager/PauseSubscriptionRequest"
	ActionResume              = "http://docs.oasis-open.org/wsn/bw-2/SubscriptionManager/ResumeSubscriptionRequest"
	ActionUnsubscribe         = "http://docs.oasis-open.org/wsn/bw-2/SubscriptionManager/UnsubscribeRequest"
	ActionDestroyRegistration = "http://docs.oasis-open.org/wsn/brw-2/PublisherRegistrationManager/DestroyRegistrationRequest"
)

type template struct {
	slots  int
	action string
	text   string
}

var notifyNamespaces = []string{
	`xmlns:ns2="http://www.w3.org/2001/12/soap-envelope"`,
	`xmlns:ns3="http://docs.oasis-open.org/wsrf/bf-2"`,
	`xmlns:wsa="http://www.w3.org/2005/08/addressing"`,
	`xmlns:wsnt="http://docs.oasis-open.org/wsn/b-2"`,
	`xmlns:ns6="http://docs.oasis-open.org/wsn/t-1"`,
	`xmlns:ns7="http://docs.oasis-open.org/wsn/br-2"`,
	`xmlns:s="http://schemas.xmlsoap.org/soap/envelope/"`,
	`xmlns:ns9="http://docs.oasis-open.org/wsrf/r-2"`,
}

// notifyEnvelopeOpen separates the namespace declarations with sep. The single
// message Notify puts one per line, the other Notify kinds keep them on one.
func notifyEnvelopeOpen(sep string) string {
	return `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<s:Envelope ` + strings.Join(notifyNamespaces, sep) + `>
<s:Header>
<wsa:Action>` + ActionNotify + `</wsa:Action>
</s:Header>
<s:Body>
<wsnt:Notify>
`
}

const notifyEnvelopeClose = `</wsnt:Notify>
</s:Body>
</s:Envelope>`

const subscribeEnvelopeOpen = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<ns6:Envelope xmlns:ns2="http://www.w3.org/2005/08/addressing"
xmlns:ns3="http://docs.oasis-open.org/wsn/b-2"
xmlns:ns4="http://docs.oasis-open.org/wsn/t-1"
xmlns:ns5="http://docs.oasis-open.org/wsrf/bf-2"
xmlns:ns6="http://schemas.xmlsoap.org/soap/envelope/"%s>
<ns6:Header>
<ns2:Action>` + ActionSubscribe + `</ns2:Action>
</ns6:Header>
<ns6:Body>
<ns3:Subscribe>
<ns3:ConsumerReference><ns2:Address>%%s</ns2:Address></ns3:ConsumerReference>
`

const subscribeEnvelopeClose = `</ns3:Subscribe>
</ns6:Body>
</ns6:Envelope>
`

// managerEnvelope is shared by every request addressed to a subscription or
// registration manager resource, and by GetCurrentMessage.
const managerEnvelope = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<s:Envelope xmlns:wsa="http://www.w3.org/2005/08/addressing"
xmlns:wsnt="http://docs.oasis-open.org/wsn/b-2"
xmlns:wsn-br="http://docs.oasis-open.org/wsn/br-2"
xmlns:wsn-bw="http://docs.oasis-open.org/wsn/bw-2"
xmlns:wsn-brw="http://docs.oasis-open.org/wsn/brw-2"
xmlns:wsrf-bf="http://docs.oasis-open.org/wsrf/bf-2"
xmlns:wsrf-bfw="http://docs.oasis-open.org/wsrf/bfw-2"
xmlns:s="http://schemas.xmlsoap.org/soap/envelope/">
<s:Header><wsa:Action>%s</wsa:Action>
</s:Header>
<s:Body>
%s
</s:Body>
</s:Envelope>
`

func notificationMessage(dialect Dialect, message string) string {
	return `<wsnt:NotificationMessage>
<wsnt:Topic Dialect="` + string(dialect) + `">%s</wsnt:Topic>
<wsnt:Message` + message + `
</wsnt:NotificationMessage>
`
}

func subscribeEnvelope(extraNS, body string) string {
	return sprintf(subscribeEnvelopeOpen, extraNS) + body + subscribeEnvelopeClose
}

func topicFilter(dialect Dialect) string {
	return `<ns3:Filter><ns3:TopicExpression Dialect="` + string(dialect) + `">%s</ns3:TopicExpression></ns3:Filter>
`
}

func managerRequest(action, body string) string {
	return sprintf(managerEnvelope, action, body)
}

var catalog = map[MessageKind]template{
	Notify: {
		slots:  2,
		action: ActionNotify,
		text: notifyEnvelopeOpen("\n") +
			notificationMessage(DialectFull, ` xmlns:oxmsg="http://okse.test.message"><Content>%s</Content></wsnt:Message>`) +
			notifyEnvelopeClose,
	},
	NotifyMultiple: {
		slots:  4,
		action: ActionNotify,
		text: notifyEnvelopeOpen(" ") +
			notificationMessage(DialectConcrete, `><Content>%s</Content></wsnt:Message>`) +
			notificationMessage(DialectSimple, `><Content>%s</Content></wsnt:Message>`) +
			notifyEnvelopeClose,
	},
	NotifyLarge: {
		slots:  2,
		action: ActionNotify,
		text: notifyEnvelopeOpen(" ") +
			notificationMessage(DialectConcrete, `><Content>%s</Content></wsnt:Message>`) +
			notifyEnvelopeClose,
	},
	Subscribe: {
		slots:  2,
		action: ActionSubscribe,
		text: subscribeEnvelope("",
			`<ns3:Filter xmlns:ox="http://okse.default.topic"><ns3:TopicExpression Dialect="`+string(DialectConcrete)+`">%s</ns3:TopicExpression></ns3:Filter>
<ns3:InitialTerminationTime>2016-01-01T00:00:00</ns3:InitialTerminationTime>
`),
	},
	SubscribeFullTopic: {
		slots:  2,
		action: ActionSubscribe,
		text: subscribeEnvelope(`
xmlns:test="http://test.com"
xmlns:test2="http://test2.com"`,
			`<ns3:Filter>
<ns3:TopicExpression Dialect="`+string(DialectFull)+`">%s</ns3:TopicExpression></ns3:Filter>
`),
	},
	SubscribeNoTopic: {
		slots:  1,
		action: ActionSubscribe,
		text:   subscribeEnvelope("", ""),
	},
	SubscribeXPathTopic: {
		slots:  2,
		action: ActionSubscribe,
		text:   subscribeEnvelope("", topicFilter(DialectXPath)),
	},
	SubscribeXPathFilter: {
		slots:  2,
		action: ActionSubscribe,
		text: subscribeEnvelope("",
			`<ns3:Filter><ns3:TopicExpression Dialect="`+string(DialectConcrete)+`">%s</ns3:TopicExpression>
<ns3:MessageContent Dialect="`+string(DialectXPath)+`">/message[text()="derp"]</ns3:MessageContent>
</ns3:Filter>
`),
	},
	SubscribeSimpleTopic: {
		slots:  2,
		action: ActionSubscribe,
		text:   subscribeEnvelope("", topicFilter(DialectSimple)),
	},
	SubscribeUseRaw: {
		slots:  2,
		action: ActionSubscribe,
		text: subscribeEnvelope("",
			`<ns3:SubscriptionPolicy><ns3:UseRaw/></ns3:SubscriptionPolicy>
`+topicFilter(DialectConcrete)),
	},
	Register: {
		slots:  2,
		action: ActionRegisterPublisher,
		text: `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<s:Envelope xmlns:wsa="http://www.w3.org/2005/08/addressing"
xmlns:wsn-b="http://docs.oasis-open.org/wsn/b-2"
xmlns:wsn-br="http://docs.oasis-open.org/wsn/br-2"
xmlns:wsn-bw="http://docs.oasis-open.org/wsn/bw-2"
xmlns:wsn-brw="http://docs.oasis-open.org/wsn/brw-2"
xmlns:wsrf-bf="http://docs.oasis-open.org/wsrf/bf-2"
xmlns:wsrf-bfw="http://docs.oasis-open.org/wsrf/bfw-2"
xmlns:s="http://schemas.xmlsoap.org/soap/envelope/"
xmlns:ox="http://okse.default.topic">
<s:Header><wsa:Action>` + ActionRegisterPublisher + `</wsa:Action>
</s:Header>
<s:Body>
<wsn-br:RegisterPublisher><wsn-br:PublisherReference><wsa:Address>%s</wsa:Address></wsn-br:PublisherReference>
<wsn-br:Topic Dialect="` + string(DialectConcrete) + `">%s</wsn-br:Topic>
<wsn-br:Demand>false</wsn-br:Demand>
<wsn-br:InitialTerminationTime>2016-01-01T14:03:00</wsn-br:InitialTerminationTime>
</wsn-br:RegisterPublisher>
</s:Body>
</s:Envelope>
`,
	},
	GetCurrentMessage: {
		slots:  1,
		action: ActionGetCurrentMessage,
		text: managerRequest(ActionGetCurrentMessage, `<wsnt:GetCurrentMessage>
<wsnt:Topic Dialect="`+string(DialectConcrete)+`">%s</wsnt:Topic>
</wsnt:GetCurrentMessage>`),
	},
	Renew: {
		action: ActionRenew,
		text: managerRequest(ActionRenew, `<wsnt:Renew>
<wsnt:TerminationTime>2016-01-02T00:00:00Z</wsnt:TerminationTime>
</wsnt:Renew>`),
	},
	Pause: {
		action: ActionPause,
		text:   managerRequest(ActionPause, `<wsnt:PauseSubscription/>`),
	},
	Resume: {
		action: ActionResume,
		text:   managerRequest(ActionResume, `<wsnt:ResumeSubscription/>`),
	},
	Unsubscribe: {
		action: ActionUnsubscribe,
		text:   managerRequest(ActionUnsubscribe, `<wsnt:Unsubscribe/>`),
	},
	Unregister: {
		action: ActionDestroyRegistration,
		text:   managerRequest(ActionDestroyRegistration, `<wsn-br:DestroyRegistration/>`),
	},
}
