// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package googlechat ingests Google Chat Takeout exports: per-group
// directories under Google Chat/Groups holding messages.json and the
// attached media files.
package googlechat

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// chatTimeLayout is Takeout's verbose timestamp form, e.g.
// "Monday, January 2, 2006 at 3:04:05 PM UTC".
const chatTimeLayout = "Monday, January 2, 2006 at 3:04:05 PM MST"

// parseChatTime parses a Takeout chat timestamp. Narrow no-break
// spaces, which some export generations emit before the meridiem, are
// normalized first. Returns the zero time on failure.
func parseChatTime(s string) time.Time {
	s = strings.ReplaceAll(s, "\u202f", " ")
	s = strings.ReplaceAll(s, "\u00a0", " ")
	t, err := time.Parse(chatTimeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

type chatUser struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type attachedFile struct {
	OriginalName string `json:"original_name"`
	ExportName   string `json:"export_name"`
}

// chatMessage is one record of a group's messages.json.
type chatMessage struct {
	Creator       chatUser       `json:"creator"`
	CreatedDate   string         `json:"created_date"`
	Text          string         `json:"text,omitempty"`
	TopicID       string         `json:"topic_id,omitempty"`
	AttachedFiles []attachedFile `json:"attached_files,omitempty"`

	created time.Time
	files   []string
}

type messagesFile struct {
	Messages []*chatMessage `json:"messages"`
}

// groupInfo is the group_info.json shape; Name is present for spaces
// and empty for DMs.
type groupInfo struct {
	Name    string     `json:"name,omitempty"`
	Members []chatUser `json:"members"`
}

// userInfo is Users/{user}/user_info.json.
type userInfo struct {
	User chatUser `json:"user"`
}

func loadMessages(groupDir string) ([]*chatMessage, error) {
	data, err := os.ReadFile(filepath.Join(groupDir, "messages.json"))
	if err != nil {
		return nil, err
	}
	var mf messagesFile
	if err := json.Unmarshal(data, &mf); err != nil {
		return nil, err
	}
	for _, m := range mf.Messages {
		m.created = parseChatTime(m.CreatedDate)
	}
	return mf.Messages, nil
}

func loadGroupInfo(groupDir string) *groupInfo {
	data, err := os.ReadFile(filepath.Join(groupDir, "group_info.json"))
	if err != nil {
		return nil
	}
	var gi groupInfo
	if err := json.Unmarshal(data, &gi); err != nil {
		return nil
	}
	return &gi
}

// loadOwner resolves the exporting account from Google Chat/Users.
func loadOwner(chatRoot string) chatUser {
	usersDir := filepath.Join(chatRoot, "Users")
	entries, err := os.ReadDir(usersDir)
	if err != nil {
		return chatUser{}
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(usersDir, e.Name(), "user_info.json"))
		if err != nil {
			continue
		}
		var ui userInfo
		if err := json.Unmarshal(data, &ui); err != nil {
			continue
		}
		if ui.User.Name != "" || ui.User.Email != "" {
			return ui.User
		}
	}
	return chatUser{}
}

// conversationIdentity derives the type and display title for a group
// directory. DM directories are named "DM {id}", spaces "Space {id}".
// A DM's title is the other member's name; a space prefers its
// group_info name, then the comma-joined first names of its non-owner
// members.
func conversationIdentity(dirName string, gi *groupInfo, owner chatUser) (string, string) {
	isSpace := strings.HasPrefix(dirName, "Space ")
	if isSpace {
		if gi != nil && gi.Name != "" {
			return "space", gi.Name
		}
		if title := memberListTitle(gi, owner); title != "" {
			return "space", title
		}
		return "space", dirName
	}
	if gi != nil {
		for _, m := range gi.Members {
			if m.Name == "" || isOwner(m, owner) {
				continue
			}
			return "dm", m.Name
		}
	}
	return "dm", dirName
}

// memberListTitle names an unnamed space after its non-owner members'
// first names.
func memberListTitle(gi *groupInfo, owner chatUser) string {
	if gi == nil {
		return ""
	}
	var names []string
	for _, m := range gi.Members {
		if m.Name == "" || isOwner(m, owner) {
			continue
		}
		if fields := strings.Fields(m.Name); len(fields) > 0 {
			names = append(names, fields[0])
		}
	}
	return strings.Join(names, ", ")
}

func isOwner(m, owner chatUser) bool {
	if owner.Email != "" {
		return m.Email == owner.Email
	}
	return owner.Name != "" && m.Name == owner.Name
}
