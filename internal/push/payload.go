// Package push models notification payloads and delivers them over Web Push.
package push

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Payload defaults applied when a Request leaves a field empty.
const (
	DefaultIcon  = "/icon-192.jpg"
	DefaultBadge = "/icon-192.jpg"
)

// DefaultVibrate is the vibration pattern used when none is given.
var DefaultVibrate = []int{100, 50, 100}

// DefaultActions are the buttons shown on the rendered notification.
var DefaultActions = []Action{
	{Action: "explore", Title: "View"},
	{Action: "close", Title: "Close"},
}

// Action is a notification button.
type Action struct {
	Action string `json:"action"`
	Title  string `json:"title"`
}

// Request is a notification built by an evaluator or a manual send. It is
// never persisted.
type Request struct {
	Title              string
	Body               string
	Icon               string
	Badge              string
	Vibrate            []int
	Tag                string // dedup key; empty means a unique tag per call
	RequireInteraction *bool
	Metadata           map[string]interface{}
	Actions            []Action
}

// Payload is the JSON document delivered to each push endpoint.
type Payload struct {
	Title              string                 `json:"title"`
	Body               string                 `json:"body"`
	Icon               string                 `json:"icon"`
	Badge              string                 `json:"badge"`
	Vibrate            []int                  `json:"vibrate"`
	Tag                string                 `json:"tag"`
	RequireInteraction bool                   `json:"requireInteraction"`
	Data               map[string]interface{} `json:"data"`
	Actions            []Action               `json:"actions"`
}

// Bool returns a pointer to b, for RequireInteraction.
func Bool(b bool) *bool { return &b }

// UniqueTag returns a tag no other call will produce, which disables dedup
// for that notification.
func UniqueTag(now time.Time) string {
	return fmt.Sprintf("notification-%d-%s", now.UnixMilli(), uuid.NewString()[:8])
}

// Build fills defaults and returns the payload to deliver at now.
func (r Request) Build(now time.Time) Payload {
	p := Payload{
		Title:              r.Title,
		Body:               r.Body,
		Icon:               r.Icon,
		Badge:              r.Badge,
		Vibrate:            r.Vibrate,
		Tag:                r.Tag,
		RequireInteraction: true,
		Actions:            r.Actions,
	}

	if p.Icon == "" {
		p.Icon = DefaultIcon
	}
	if p.Badge == "" {
		p.Badge = DefaultBadge
	}
	if len(p.Vibrate) == 0 {
		p.Vibrate = DefaultVibrate
	}
	if p.Tag == "" {
		p.Tag = UniqueTag(now)
	}
	if r.RequireInteraction != nil {
		p.RequireInteraction = *r.RequireInteraction
	}
	if len(p.Actions) == 0 {
		p.Actions = DefaultActions
	}

	p.Data = make(map[string]interface{}, len(r.Metadata)+1)
	p.Data["dateOfArrival"] = now.UnixMilli()
	for k, v := range r.Metadata {
		p.Data[k] = v
	}

	return p
}

// Marshal serializes the payload for delivery.
func (p Payload) Marshal() ([]byte, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return data, nil
}
