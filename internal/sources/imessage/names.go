// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package imessage ingests iMessage attachment exports produced by
// desktop backup tools: date-and-contact-prefixed media files with
// optional per-chat CSV transcripts, enriched from the device's
// chat.db when present.
package imessage

import (
	"regexp"
	"strings"
	"time"
)

// attachmentNameRe splits "{date} - {contact} - {original}" where the
// date flattens colons to spaces.
var attachmentNameRe = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2} \d{2} \d{2} \d{2}) - (.+?) - (.+)$`)

const attachmentTimeLayout = "2006-01-02 15 04 05"

// attachmentName is the parsed identity of one exported attachment.
type attachmentName struct {
	Sent     time.Time
	Contact  string
	Original string
}

// parseAttachmentName parses an exported attachment filename. Files
// outside the naming scheme are not attachments.
func parseAttachmentName(name string) (attachmentName, bool) {
	m := attachmentNameRe.FindStringSubmatch(name)
	if m == nil {
		return attachmentName{}, false
	}
	t, err := time.Parse(attachmentTimeLayout, m[1])
	if err != nil {
		return attachmentName{}, false
	}
	return attachmentName{Sent: t.UTC(), Contact: m[2], Original: m[3]}, true
}

// groupSeparator joins participant names in a group chat's contact
// field.
const groupSeparator = " & "

// isGroupContact reports whether a contact field names a group chat.
func isGroupContact(contact string) bool {
	return strings.Contains(contact, groupSeparator)
}
