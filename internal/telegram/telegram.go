// Package telegram wraps the bot API behind the small transport surface the
// dispatcher needs: authorized-chat filtering, message splitting, inline
// keyboards, and edits of previously sent messages.
package telegram

import (
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v3"
)

// MaxMessageLen is the safe chunk size for outbound text. The API limit is
// 4096; leaving headroom avoids edge failures on multi-byte runes.
const MaxMessageLen = 4000

// Button is one inline keyboard button. Data is the callback payload echoed
// back when the button is pressed.
type Button struct {
	Text string
	Data string
}

// Message is an inbound text message from the authorized chat. ReplyTo is
// the ID of the message being replied to, or zero.
type Message struct {
	ID      int
	Text    string
	ReplyTo int
}

// Callback is an inbound button press from the authorized chat.
type Callback struct {
	MessageID int
	Data      string
}

type Client struct {
	bot    *tele.Bot
	chatID int64

	textHandler     func(Message)
	callbackHandler func(Callback)
}

func NewClient(token string, chatID int64, pollTimeout time.Duration) (*Client, error) {
	if pollTimeout <= 0 {
		pollTimeout = 30 * time.Second
	}
	bot, err := tele.NewBot(tele.Settings{
		Token:  token,
		Poller: &tele.LongPoller{Timeout: pollTimeout},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	return &Client{bot: bot, chatID: chatID}, nil
}

// NewSender builds a send-only client that skips the startup API handshake.
// Short-lived hook processes use it to deliver a message and exit.
func NewSender(token string, chatID int64) (*Client, error) {
	bot, err := tele.NewBot(tele.Settings{Token: token, Offline: true})
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram sender: %w", err)
	}
	return &Client{bot: bot, chatID: chatID}, nil
}

// SetTextHandler registers the callback for inbound text messages.
func (c *Client) SetTextHandler(h func(Message)) {
	c.textHandler = h
}

// SetCallbackHandler registers the callback for inline button presses.
func (c *Client) SetCallbackHandler(h func(Callback)) {
	c.callbackHandler = h
}

// Start wires the handlers and blocks polling for updates until Stop.
func (c *Client) Start() {
	c.bot.Handle(tele.OnText, func(ctx tele.Context) error {
		if !c.authorized(ctx) {
			return nil
		}
		if c.textHandler != nil {
			msg := Message{ID: ctx.Message().ID, Text: ctx.Text()}
			if ctx.Message().ReplyTo != nil {
				msg.ReplyTo = ctx.Message().ReplyTo.ID
			}
			c.textHandler(msg)
		}
		return nil
	})

	c.bot.Handle(tele.OnCallback, func(ctx tele.Context) error {
		// Acknowledge first so the client stops showing a spinner even
		// when handling fails.
		_ = ctx.Respond()
		if !c.authorized(ctx) {
			return nil
		}
		data := strings.TrimSpace(ctx.Callback().Data)
		if c.callbackHandler != nil && ctx.Callback().Message != nil {
			c.callbackHandler(Callback{MessageID: ctx.Callback().Message.ID, Data: data})
		}
		return nil
	})

	log.Printf("Telegram transport started: chat_id=%d", c.chatID)
	c.bot.Start()
}

// Stop terminates the update poller.
func (c *Client) Stop() {
	c.bot.Stop()
}

func (c *Client) authorized(ctx tele.Context) bool {
	chat := ctx.Chat()
	if chat == nil || chat.ID != c.chatID {
		if chat != nil {
			log.Printf("Ignoring update from unauthorized chat %d", chat.ID)
		}
		return false
	}
	return true
}

// Send delivers text to the authorized chat, splitting messages that exceed
// the size limit. The returned ID is the last chunk's message ID.
func (c *Client) Send(text string) (int, error) {
	return c.send(text, nil, false)
}

// SendSilent delivers text without triggering a client notification.
func (c *Client) SendSilent(text string) (int, error) {
	return c.send(text, nil, true)
}

// SendWithKeyboard delivers text with an inline keyboard attached. Only the
// last chunk of an oversized message carries the keyboard.
func (c *Client) SendWithKeyboard(text string, rows [][]Button) (int, error) {
	return c.send(text, rows, false)
}

func (c *Client) send(text string, rows [][]Button, silent bool) (int, error) {
	chunks := splitMessage(text, MaxMessageLen)
	lastID := 0
	for i, chunk := range chunks {
		opts := &tele.SendOptions{DisableNotification: silent}
		if rows != nil && i == len(chunks)-1 {
			opts.ReplyMarkup = &tele.ReplyMarkup{InlineKeyboard: toInline(rows)}
		}
		msg, err := c.bot.Send(tele.ChatID(c.chatID), chunk, opts)
		if err != nil {
			return lastID, fmt.Errorf("failed to send message: %w", err)
		}
		lastID = msg.ID
	}
	return lastID, nil
}

// EditMessage rewrites a previously sent message's text and keyboard. A nil
// rows slice removes the keyboard.
func (c *Client) EditMessage(messageID int, text string, rows [][]Button) error {
	stored := tele.StoredMessage{
		MessageID: strconv.Itoa(messageID),
		ChatID:    c.chatID,
	}
	opts := &tele.SendOptions{}
	if rows != nil {
		opts.ReplyMarkup = &tele.ReplyMarkup{InlineKeyboard: toInline(rows)}
	}
	if _, err := c.bot.Edit(stored, text, opts); err != nil {
		return fmt.Errorf("failed to edit message %d: %w", messageID, err)
	}
	return nil
}

// EditKeyboard replaces only the inline keyboard of a sent message.
func (c *Client) EditKeyboard(messageID int, rows [][]Button) error {
	stored := tele.StoredMessage{
		MessageID: strconv.Itoa(messageID),
		ChatID:    c.chatID,
	}
	markup := &tele.ReplyMarkup{InlineKeyboard: toInline(rows)}
	if _, err := c.bot.EditReplyMarkup(stored, markup); err != nil {
		return fmt.Errorf("failed to edit keyboard of message %d: %w", messageID, err)
	}
	return nil
}

// Typing shows the typing indicator in the chat. It fades on its own after a
// few seconds, so the caller re-sends it on a cadence.
func (c *Client) Typing() error {
	return c.bot.Notify(tele.ChatID(c.chatID), tele.Typing)
}

func toInline(rows [][]Button) [][]tele.InlineButton {
	out := make([][]tele.InlineButton, 0, len(rows))
	for _, row := range rows {
		line := make([]tele.InlineButton, 0, len(row))
		for _, b := range row {
			line = append(line, tele.InlineButton{Text: b.Text, Data: b.Data})
		}
		out = append(out, line)
	}
	return out
}

// splitMessage cuts text into chunks of at most limit bytes, preferring
// newline boundaries so code blocks and lists stay readable.
func splitMessage(text string, limit int) []string {
	if len(text) <= limit {
		return []string{text}
	}
	var chunks []string
	for len(text) > limit {
		cut := strings.LastIndexByte(text[:limit], '\n')
		if cut <= 0 {
			cut = limit
		}
		chunks = append(chunks, strings.TrimRight(text[:cut], "\n"))
		text = strings.TrimLeft(text[cut:], "\n")
	}
	if text = strings.TrimRight(text, "\n"); text != "" {
		chunks = append(chunks, text)
	}
	return chunks
}
