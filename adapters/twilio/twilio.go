// Package twilio sends SMS and WhatsApp messages through the Twilio
// Messages REST API.
package twilio

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3/client"

	"github.com/lborres/pulsetrack/core"
)

const (
	DefaultBaseURL = "https://api.twilio.com"
	whatsappPrefix = "whatsapp:"

	TestMessageBody = "This is a test message from PulseTrack. If you received this, Twilio is configured correctly!"
)

var ErrTestNumberNotConfigured = errors.New("test phone number not configured")

type Config struct {
	AccountSID     string
	AuthToken      string
	PhoneNumber    string
	WhatsAppNumber string
	// TestPhoneNumber receives SendTestMessage.
	TestPhoneNumber string
	// BaseURL overrides the API host.
	BaseURL string
	Timeout time.Duration
}

// APIError is the error body Twilio returns on a rejected request.
type APIError struct {
	Status  int    `json:"status"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("twilio: %s (code %d, status %d)", e.Message, e.Code, e.Status)
}

// Client is the shared REST client. SMS and WhatsApp wrap it with their
// sender number.
type Client struct {
	http   *client.Client
	config Config
}

func New(config Config) (*Client, error) {
	if config.AccountSID == "" || config.AuthToken == "" {
		return nil, fmt.Errorf("%w: twilio account sid and auth token are required", core.ErrTransportNotConfigured)
	}
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}

	return &Client{http: client.New(), config: config}, nil
}

// SMS returns a transport sending from the configured phone number.
func (c *Client) SMS() *Transport {
	return &Transport{client: c, from: c.config.PhoneNumber}
}

// WhatsApp returns a transport sending from the configured WhatsApp
// number. Both ends are given the whatsapp: prefix.
func (c *Client) WhatsApp() *Transport {
	return &Transport{client: c, from: whatsappAddress(c.config.WhatsAppNumber), whatsapp: true}
}

// SendTestMessage sends a fixed SMS to the configured test number.
func (c *Client) SendTestMessage(ctx context.Context) (*core.TransportReceipt, error) {
	if c.config.TestPhoneNumber == "" {
		return nil, ErrTestNumberNotConfigured
	}
	return c.SMS().Send(ctx, c.config.TestPhoneNumber, TestMessageBody)
}

func (c *Client) messagesURL() string {
	return fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", strings.TrimRight(c.config.BaseURL, "/"), c.config.AccountSID)
}

func (c *Client) send(ctx context.Context, from, to, body string) (*core.TransportReceipt, error) {
	credentials := base64.StdEncoding.EncodeToString([]byte(c.config.AccountSID + ":" + c.config.AuthToken))

	resp, err := c.http.Post(c.messagesURL(), client.Config{
		Ctx:     ctx,
		Timeout: c.config.Timeout,
		Header: map[string]string{
			"Authorization": "Basic " + credentials,
			"Accept":        "application/json",
		},
		FormData: map[string]string{
			"To":   to,
			"From": from,
			"Body": body,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("twilio request failed: %w", err)
	}
	defer resp.Close()

	if status := resp.StatusCode(); status < 200 || status > 299 {
		apiErr := &APIError{Status: status}
		if jsonErr := json.Unmarshal(resp.Body(), apiErr); jsonErr != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(resp.Body()))
		}
		return nil, apiErr
	}

	var receipt core.TransportReceipt
	if err := json.Unmarshal(resp.Body(), &receipt); err != nil {
		return nil, fmt.Errorf("failed to decode twilio response: %w", err)
	}
	return &receipt, nil
}

// Transport is a MessageTransport bound to one sender.
type Transport struct {
	client   *Client
	from     string
	whatsapp bool
}

var _ core.MessageTransport = (*Transport)(nil)

func (t *Transport) Send(ctx context.Context, to, body string) (*core.TransportReceipt, error) {
	if t.from == "" {
		return nil, fmt.Errorf("%w: sender number is empty", core.ErrTransportNotConfigured)
	}
	if t.whatsapp {
		to = whatsappAddress(to)
	}
	return t.client.send(ctx, t.from, to, body)
}

func whatsappAddress(number string) string {
	if number == "" || strings.HasPrefix(number, whatsappPrefix) {
		return number
	}
	return whatsappPrefix + number
}
