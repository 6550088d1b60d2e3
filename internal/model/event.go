package model

import (
	"github.com/maxbolgarin/errm"
	"github.com/maxbolgarin/lang"
)

// String caps applied to inbound webhook fields.
const (
	MaxShortStringLen  = 255
	MaxTitleLen        = 500
	MaxURLLen          = 1000
	MaxDescriptionLen  = 10000
	MaxWebhookBodySize = 10 << 20
)

// MergeRequestEvent is the forge's merge-request hook payload.
type MergeRequestEvent struct {
	ObjectKind       string           `json:"object_kind"`
	EventType        string           `json:"event_type"`
	ObjectAttributes *EventAttributes `json:"object_attributes"`
	Project          *EventProject    `json:"project"`
	User             *EventUser       `json:"user"`
}

// EventAttributes is the object_attributes section of the hook payload.
type EventAttributes struct {
	ID             int64  `json:"id"`
	IID            int    `json:"iid"`
	Title          string `json:"title"`
	Description    string `json:"description"`
	SourceBranch   string `json:"source_branch"`
	TargetBranch   string `json:"target_branch"`
	URL            string `json:"url"`
	WorkInProgress bool   `json:"work_in_progress"`
	State          string `json:"state"`
	Action         string `json:"action"`
}

// EventProject is the project section of the hook payload.
type EventProject struct {
	ID        int    `json:"id"`
	Name      string `json:"name"`
	Namespace string `json:"namespace"`
	WebURL    string `json:"web_url"`
}

// EventUser is the user section of the hook payload.
type EventUser struct {
	ID        int    `json:"id"`
	Username  string `json:"username"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url"`
}

// Validate rejects payloads missing one of the required sections.
func (e *MergeRequestEvent) Validate() error {
	if e.ObjectAttributes == nil {
		return errm.New("missing object_attributes")
	}
	if e.Project == nil {
		return errm.New("missing project")
	}
	if e.User == nil {
		return errm.New("missing user")
	}
	return nil
}

// Normalize clamps string fields to the configured caps.
func (e *MergeRequestEvent) Normalize() {
	if e.ObjectAttributes != nil {
		a := e.ObjectAttributes
		a.Title = lang.TruncateString(a.Title, MaxTitleLen)
		a.Description = lang.TruncateString(a.Description, MaxDescriptionLen)
		a.SourceBranch = lang.TruncateString(a.SourceBranch, MaxShortStringLen)
		a.TargetBranch = lang.TruncateString(a.TargetBranch, MaxShortStringLen)
		a.URL = lang.TruncateString(a.URL, MaxURLLen)
	}
	if e.Project != nil {
		e.Project.Name = lang.TruncateString(e.Project.Name, MaxShortStringLen)
		e.Project.Namespace = lang.TruncateString(e.Project.Namespace, MaxShortStringLen)
		e.Project.WebURL = lang.TruncateString(e.Project.WebURL, MaxURLLen)
	}
	if e.User != nil {
		e.User.Username = lang.TruncateString(e.User.Username, MaxShortStringLen)
		e.User.Name = lang.TruncateString(e.User.Name, MaxShortStringLen)
		e.User.Email = lang.TruncateString(e.User.Email, MaxShortStringLen)
		e.User.AvatarURL = lang.TruncateString(e.User.AvatarURL, MaxURLLen)
	}
}

// ShouldReview reports whether the event's action and WIP flag allow a review.
func (e *MergeRequestEvent) ShouldReview() bool {
	if e.ObjectAttributes == nil || e.ObjectAttributes.WorkInProgress {
		return false
	}
	switch e.ObjectAttributes.Action {
	case "opened", "open", "update", "reopen":
		return true
	}
	return false
}
