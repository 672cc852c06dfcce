// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package overlay

import (
	"fmt"
	"strings"
)

// MessagesDescription builds the multi-line description embedded into
// videos originating from Snapchat chat media. The content line is
// omitted when the message carried no text.
func MessagesDescription(user, conversation, sender, text string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Source: Snapchat/%s/messages\n", user)
	fmt.Fprintf(&b, "Conversation: %q\n", conversation)
	fmt.Fprintf(&b, "Sender: %q", sender)
	if text != "" {
		fmt.Fprintf(&b, "\nContent: %q", text)
	}
	return b.String()
}

// MemoriesDescription builds the single-line description for Snapchat
// memories media.
func MemoriesDescription(user string) string {
	return fmt.Sprintf("Source: Snapchat/%s/memories", user)
}
