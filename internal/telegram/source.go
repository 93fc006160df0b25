// Package telegram consumes channel posts via the Bot API's long-poll
// getUpdates endpoint and feeds them to the pipeline one at a time.
package telegram

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
)

const pollTimeout = 50 // seconds, server-side long-poll hold

// MessageHandler processes one channel message. Calls are sequential; the
// source never overlaps deliveries.
type MessageHandler func(ctx context.Context, text, channel string)

// Source long-polls the Bot API for new channel posts.
type Source struct {
	client  *resty.Client
	allowed map[string]bool // empty means accept every channel
	offset  int64
}

// NewSource builds a source for the given bot token. channels restricts
// delivery to the named channel usernames or ids.
func NewSource(token string, channels []string) *Source {
	allowed := make(map[string]bool, len(channels))
	for _, c := range channels {
		if c != "" {
			allowed[c] = true
		}
	}
	return &Source{
		client: resty.New().
			SetBaseURL("https://api.telegram.org/bot"+token).
			SetTimeout((pollTimeout + 10) * time.Second).
			SetRetryCount(2),
		allowed: allowed,
	}
}

type update struct {
	UpdateID    int64    `json:"update_id"`
	Message     *message `json:"message"`
	ChannelPost *message `json:"channel_post"`
}

type message struct {
	Text string `json:"text"`
	Chat struct {
		ID       int64  `json:"id"`
		Username string `json:"username"`
		Title    string `json:"title"`
	} `json:"chat"`
}

type updatesResponse struct {
	OK          bool     `json:"ok"`
	Description string   `json:"description"`
	Result      []update `json:"result"`
}

// Run polls until ctx is cancelled, delivering each accepted post to
// handler in arrival order. Poll failures back off and retry; they never
// terminate the loop.
func (s *Source) Run(ctx context.Context, handler MessageHandler) {
	log.Printf("telegram: polling started (%d allowed channels)", len(s.allowed))
	for ctx.Err() == nil {
		updates, err := s.poll(ctx)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			log.Printf("telegram: poll failed, retrying: %v", err)
			select {
			case <-time.After(5 * time.Second):
			case <-ctx.Done():
			}
			continue
		}

		for _, u := range updates {
			if u.UpdateID >= s.offset {
				s.offset = u.UpdateID + 1
			}
			msg := u.ChannelPost
			if msg == nil {
				msg = u.Message
			}
			if msg == nil || msg.Text == "" {
				continue
			}
			channel := channelName(msg)
			if len(s.allowed) > 0 && !s.allowed[channel] {
				continue
			}
			handler(ctx, msg.Text, channel)
		}
	}
	log.Printf("telegram: polling stopped")
}

func (s *Source) poll(ctx context.Context) ([]update, error) {
	var out updatesResponse
	res, err := s.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"timeout":         strconv.Itoa(pollTimeout),
			"offset":          strconv.FormatInt(s.offset, 10),
			"allowed_updates": `["message","channel_post"]`,
		}).
		SetResult(&out).
		Get("/getUpdates")
	if err != nil {
		return nil, err
	}
	if res.IsError() {
		return nil, fmt.Errorf("getUpdates: status %s", res.Status())
	}
	if !out.OK {
		return nil, fmt.Errorf("getUpdates: %s", out.Description)
	}
	return out.Result, nil
}

// channelName prefers the public username, falling back to the numeric id.
func channelName(msg *message) string {
	if msg.Chat.Username != "" {
		return msg.Chat.Username
	}
	return strconv.FormatInt(msg.Chat.ID, 10)
}
