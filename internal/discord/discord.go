// Package discord wraps the Discord REST operations used to keep the
// primary pull-request message and its thread up to date. Only the REST API
// is used; the gateway is never opened.
package discord

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/bwmarrin/discordgo"
)

// Thread names auto-archive after the platform maximum (7 days); handlers
// archive explicitly on merge anyway.
const autoArchiveMinutes = 10080

// session is the subset of *discordgo.Session the client uses.
type session interface {
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessage(channelID, messageID string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageEdit(channelID, messageID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	MessageThreadStartComplex(channelID, messageID string, data *discordgo.ThreadStart, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	MessageReactionAdd(channelID, messageID, emojiID string, options ...discordgo.RequestOption) error
	MessageReactionRemove(channelID, messageID, emojiID, userID string, options ...discordgo.RequestOption) error
	ChannelEditComplex(channelID string, data *discordgo.ChannelEdit, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ThreadMemberRemove(threadID, memberID string, options ...discordgo.RequestOption) error
}

// Client is a thin notification client over the Discord REST API.
type Client struct {
	s session
}

// New creates a Client authenticated with the given bot token.
func New(token string) (*Client, error) {
	if token == "" {
		return nil, fmt.Errorf("discord bot token is required")
	}
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("creating discord session: %w", err)
	}
	return &Client{s: s}, nil
}

// Send posts a message to a channel and returns its id.
func (c *Client) Send(ctx context.Context, channelID, content string) (string, error) {
	msg, err := c.s.ChannelMessageSend(channelID, content, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("sending message to channel %s: %w", channelID, err)
	}
	return msg.ID, nil
}

// CreateThread starts a thread anchored on the given message and returns the
// thread id.
func (c *Client) CreateThread(ctx context.Context, channelID, messageID, name string) (string, error) {
	thread, err := c.s.MessageThreadStartComplex(channelID, messageID, &discordgo.ThreadStart{
		Name:                name,
		AutoArchiveDuration: autoArchiveMinutes,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("creating thread on message %s: %w", messageID, err)
	}
	return thread.ID, nil
}

// SendInThread posts a message into a thread.
func (c *Client) SendInThread(ctx context.Context, threadID, content string) error {
	if _, err := c.s.ChannelMessageSend(threadID, content, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("sending message to thread %s: %w", threadID, err)
	}
	return nil
}

// GetMessage fetches the current text of a message.
func (c *Client) GetMessage(ctx context.Context, channelID, messageID string) (string, error) {
	msg, err := c.s.ChannelMessage(channelID, messageID, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("fetching message %s: %w", messageID, err)
	}
	return msg.Content, nil
}

// EditMessage replaces the full text of a message.
func (c *Client) EditMessage(ctx context.Context, channelID, messageID, content string) error {
	if _, err := c.s.ChannelMessageEdit(channelID, messageID, content, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("editing message %s: %w", messageID, err)
	}
	return nil
}

// AddReaction adds a unicode emoji reaction to a message.
func (c *Client) AddReaction(ctx context.Context, channelID, messageID, emoji string) error {
	if err := c.s.MessageReactionAdd(channelID, messageID, emoji, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("adding %s reaction to message %s: %w", emoji, messageID, err)
	}
	return nil
}

// RemoveReaction removes the bot's own reaction from a message. Removing a
// reaction that isn't there is not an error.
func (c *Client) RemoveReaction(ctx context.Context, channelID, messageID, emoji string) error {
	err := c.s.MessageReactionRemove(channelID, messageID, emoji, "@me", discordgo.WithContext(ctx))
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("removing %s reaction from message %s: %w", emoji, messageID, err)
	}
	return nil
}

// SetLocked locks or unlocks a thread.
func (c *Client) SetLocked(ctx context.Context, threadID string, locked bool) error {
	_, err := c.s.ChannelEditComplex(threadID, &discordgo.ChannelEdit{
		Locked: &locked,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("setting thread %s locked=%v: %w", threadID, locked, err)
	}
	return nil
}

// Archive archives a thread.
func (c *Client) Archive(ctx context.Context, threadID string) error {
	archived := true
	_, err := c.s.ChannelEditComplex(threadID, &discordgo.ChannelEdit{
		Archived: &archived,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("archiving thread %s: %w", threadID, err)
	}
	return nil
}

// RemoveThreadMember removes a user from a thread. Absence is not an error.
func (c *Client) RemoveThreadMember(ctx context.Context, threadID, userID string) error {
	err := c.s.ThreadMemberRemove(threadID, userID, discordgo.WithContext(ctx))
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("removing user %s from thread %s: %w", userID, threadID, err)
	}
	return nil
}

// isNotFound reports whether a Discord REST error is a plain 404.
func isNotFound(err error) bool {
	var restErr *discordgo.RESTError
	return errors.As(err, &restErr) &&
		restErr.Response != nil &&
		restErr.Response.StatusCode == http.StatusNotFound
}
