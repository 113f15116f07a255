package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/url"
	"strconv"
	"strings"

	"github.com/mattjoyce/beacon/internal/alert"
)

// Client speaks the alert service's API on top of a Transport.
type Client struct {
	transport   Transport
	baseURL     string
	recipientID string
}

func NewClient(t Transport, baseURL, recipientID string) *Client {
	return &Client{
		transport:   t,
		baseURL:     strings.TrimRight(baseURL, "/"),
		recipientID: recipientID,
	}
}

// AlertURL is the endpoint alerts are posted to.
func (c *Client) AlertURL() string {
	return c.baseURL + "/emergency_alert/" + url.PathEscape(c.recipientID)
}

// ContactsURL is the endpoint contacts are registered at.
func (c *Client) ContactsURL() string {
	return c.baseURL + "/contacts"
}

// SendAlert posts the payload. Non-2xx responses are returned without
// error; the caller decides what a rejection means.
func (c *Client) SendAlert(ctx context.Context, p alert.Payload) (Response, error) {
	ct, body, err := p.Encode()
	if err != nil {
		return Response{}, fmt.Errorf("encode payload: %w", err)
	}
	return c.transport.Do(ctx, Request{URL: c.AlertURL(), ContentType: ct, Body: body})
}

// Contact is an emergency contact registered for a user.
type Contact struct {
	UserID       int    `json:"user_id"`
	Name         string `json:"name"`
	Phone        string `json:"phone"`
	Relationship string `json:"relationship,omitempty"`
	Address      string `json:"address,omitempty"`
}

// Validate checks the fields the service requires.
func (ct Contact) Validate() error {
	var errs []error
	if ct.UserID <= 0 {
		errs = append(errs, errors.New("user_id must be positive"))
	}
	if strings.TrimSpace(ct.Name) == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if strings.TrimSpace(ct.Phone) == "" {
		errs = append(errs, errors.New("phone is required"))
	}
	return errors.Join(errs...)
}

func (ct Contact) encode() (string, []byte, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fields := [][2]string{
		{"user_id", strconv.Itoa(ct.UserID)},
		{"name", ct.Name},
		{"phone", ct.Phone},
		{"relationship", ct.Relationship},
		{"address", ct.Address},
	}
	for _, f := range fields {
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return "", nil, fmt.Errorf("write %s: %w", f[0], err)
		}
	}
	if err := mw.Close(); err != nil {
		return "", nil, err
	}
	return mw.FormDataContentType(), buf.Bytes(), nil
}

// PostContact registers a contact and collapses the exchange to a success
// flag and a message suitable for display.
func (c *Client) PostContact(ctx context.Context, ct Contact) (bool, string) {
	contentType, body, err := ct.encode()
	if err != nil {
		return false, err.Error()
	}
	resp, err := c.transport.Do(ctx, Request{URL: c.ContactsURL(), ContentType: contentType, Body: body})
	if err != nil {
		msg := err.Error()
		if msg == "" {
			msg = "Network error"
		}
		return false, msg
	}
	msg := resp.Body
	if msg == "" {
		msg = "No response"
	}
	return resp.OK(), msg
}
