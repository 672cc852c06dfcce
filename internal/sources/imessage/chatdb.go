// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package imessage

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// dbMessage is the chat.db context recovered for one attachment,
// keyed by the attachment's transfer name.
type dbMessage struct {
	Text   string
	Sender string
	FromMe bool
}

// findChatDB locates a Messages database alongside the export.
func findChatDB(inputDir string) string {
	for _, name := range []string{"chat.db", "sms.db"} {
		path := filepath.Join(inputDir, name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path
		}
	}
	return ""
}

// attachmentQuery joins attachments to their message text and sender
// handle.
const attachmentQuery = `
SELECT a.transfer_name, COALESCE(m.text, ''), m.is_from_me, COALESCE(h.id, '')
FROM message m
JOIN message_attachment_join maj ON maj.message_id = m.ROWID
JOIN attachment a ON a.ROWID = maj.attachment_id
LEFT JOIN handle h ON h.ROWID = m.handle_id
WHERE a.transfer_name IS NOT NULL`

// loadChatDB indexes message context by attachment transfer name. A
// missing or unreadable database yields an empty index; enrichment is
// strictly best-effort.
func loadChatDB(ctx context.Context, path string) (map[string]*dbMessage, error) {
	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, attachmentQuery)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	index := make(map[string]*dbMessage)
	for rows.Next() {
		var name, text, sender string
		var fromMe int
		if err := rows.Scan(&name, &text, &fromMe, &sender); err != nil {
			return nil, err
		}
		if name == "" {
			continue
		}
		if _, dup := index[name]; dup {
			continue
		}
		index[name] = &dbMessage{Text: text, Sender: sender, FromMe: fromMe != 0}
	}
	return index, rows.Err()
}
