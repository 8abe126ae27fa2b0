package controlid

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"

	"accesscontrol/internal/domain"
)

const defaultDevicePort = 80

// createObjectsRequest is the body of create_objects.fcgi.
type createObjectsRequest struct {
	Object string       `json:"object"`
	Values []deviceUser `json:"values"`
}

type deviceUser struct {
	Name         string `json:"name"`
	Registration string `json:"registration,omitempty"`
}

type client struct {
	http   *http.Client
	apiKey string
}

// NewClient returns a CredentialPusher that talks to Control iD controllers over their
// local HTTP API. apiKey is sent as a bearer token when non-empty.
func NewClient(httpClient *http.Client, apiKey string) domain.CredentialPusher {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &client{http: httpClient, apiKey: apiKey}
}

// PushCredential creates the resident as a user on device. Errors wrap
// domain.ErrDeviceTimeout, domain.ErrDeviceUnreachable or domain.ErrDeviceRejected.
func (c *client) PushCredential(ctx context.Context, device *domain.Device, resident *domain.Resident) error {
	body, err := json.Marshal(createObjectsRequest{
		Object: "users",
		Values: []deviceUser{{
			Name:         resident.Name,
			Registration: digitsOnly(resident.Document),
		}},
	})
	if err != nil {
		return fmt.Errorf("%w: encode request: %v", domain.ErrDeviceRejected, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(device, "create_objects"), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: build request: %v", domain.ErrDeviceUnreachable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if isTimeout(ctx, err) {
			return fmt.Errorf("%w: %v", domain.ErrDeviceTimeout, err)
		}
		return fmt.Errorf("%w: %v", domain.ErrDeviceUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: device returned status %d: %s", domain.ErrDeviceRejected, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (c *client) endpoint(device *domain.Device, action string) string {
	port := device.Port
	if port <= 0 {
		port = defaultDevicePort
	}
	host := net.JoinHostPort(device.IP, strconv.Itoa(port))
	return fmt.Sprintf("http://%s/%s.fcgi", host, action)
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func digitsOnly(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
}
