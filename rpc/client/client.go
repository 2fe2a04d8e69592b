package client

import (
	"sync"

	"github.com/ValentinKolb/mKV/rpc/common"
	"github.com/ValentinKolb/mKV/rpc/transport"
	"github.com/cockroachdb/errors"
)

// Client is a connection to an mKV server. The server keeps the selected
// database per connection, so one Client corresponds to one session.
// It is safe for concurrent use, requests are sent one at a time.
type Client struct {
	config    common.ClientConfig
	transport transport.IRPCClientTransport

	mu       sync.Mutex // protects selected
	selected string
}

// NewClient connects t using config and returns a client without a selected database.
//
// Usage:
//
//	c, err := client.NewClient(config, tcp.NewTCPClientTransport())
//	if err != nil {
//		return err
//	}
//	defer c.Close()
//
//	_ = c.Use("users")
//	_ = c.Set([]byte("alice"), []byte("admin"))
func NewClient(config common.ClientConfig, t transport.IRPCClientTransport) (*Client, error) {
	if err := t.Connect(config); err != nil {
		return nil, err
	}
	Logger.Debugf("connected to %s via %s", config.Endpoint, config.Transport)
	return &Client{
		config:    config,
		transport: t,
	}, nil
}

// Close closes the connection. The server releases the selected database.
func (c *Client) Close() error {
	c.mu.Lock()
	c.selected = ""
	c.mu.Unlock()
	return c.transport.Close()
}

// --------------------------------------------------------------------------
// Database Commands
// --------------------------------------------------------------------------

// Use attaches name on the server (creating it if needed) and selects it
func (c *Client) Use(name string) error {
	if _, err := invoke(c.transport, common.NewUseRequest(name), common.MsgTOk); err != nil {
		return err
	}
	c.mu.Lock()
	c.selected = name
	c.mu.Unlock()
	return nil
}

// Selected returns the name of the database selected by this client, "" if none
func (c *Client) Selected() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selected
}

// CurrentDB asks the server for the selected database
func (c *Client) CurrentDB() (string, error) {
	resp, err := invoke(c.transport, common.NewCurrentDBRequest(), common.MsgTToken)
	if err != nil {
		if IsServerError(err, ErrNoDBSelected.Error()) {
			return "", ErrNoDBSelected
		}
		return "", err
	}
	return string(resp.(*common.TokenResp).Token), nil
}

// ListDB returns the names of all attached databases in ascending order
func (c *Client) ListDB() ([]string, error) {
	resp, err := invoke(c.transport, common.NewListDBRequest(), common.MsgTTokens)
	if err != nil {
		return nil, err
	}
	tokens := resp.(*common.TokensResp).Tokens
	names := make([]string, len(tokens))
	for i, t := range tokens {
		names[i] = string(t)
	}
	return names, nil
}

// Detach removes name from the server's registry. Other connections that
// selected it keep working on it until they select something else.
func (c *Client) Detach(name string) error {
	if _, err := invoke(c.transport, common.NewDetachRequest(name), common.MsgTOk); err != nil {
		return err
	}
	c.mu.Lock()
	if c.selected == name {
		c.selected = ""
	}
	c.mu.Unlock()
	return nil
}

// --------------------------------------------------------------------------
// Data Commands
// --------------------------------------------------------------------------

// Read returns one value per key. Missing keys yield an empty value.
func (c *Client) Read(keys ...[]byte) ([][]byte, error) {
	if err := c.requireSelected(); err != nil {
		return nil, err
	}
	resp, err := invoke(c.transport, common.NewReadRequest(keys...), common.MsgTTokens)
	if err != nil {
		return nil, err
	}
	values := resp.(*common.TokensResp).Tokens
	if len(values) != len(keys) {
		return nil, errors.Wrapf(ErrUnexpectedResponse, "%d values for %d keys", len(values), len(keys))
	}
	return values, nil
}

// Get returns the value of key. The protocol does not distinguish a missing
// key from an empty value, both report loaded = false.
func (c *Client) Get(key []byte) (value []byte, loaded bool, err error) {
	values, err := c.Read(key)
	if err != nil {
		return nil, false, err
	}
	if len(values[0]) == 0 {
		return nil, false, nil
	}
	return values[0], true, nil
}

// Write stores all pairs in order. On failure pairs before the failing one stay written.
func (c *Client) Write(pairs ...common.KV) error {
	if err := c.requireSelected(); err != nil {
		return err
	}
	_, err := invoke(c.transport, common.NewWriteRequest(pairs...), common.MsgTOk)
	return err
}

// WriteTokens stores a flat list of alternating keys and values
func (c *Client) WriteTokens(tokens ...[]byte) error {
	if len(tokens)%2 != 0 {
		return errors.Wrapf(ErrInvalidData, "odd number of tokens (%d)", len(tokens))
	}
	pairs := make([]common.KV, 0, len(tokens)/2)
	for i := 0; i < len(tokens); i += 2 {
		pairs = append(pairs, common.KV{Key: tokens[i], Value: tokens[i+1]})
	}
	return c.Write(pairs...)
}

// Set stores a single pair
func (c *Client) Set(key, value []byte) error {
	return c.Write(common.KV{Key: key, Value: value})
}

// Delete removes all keys. Missing keys are not an error.
func (c *Client) Delete(keys ...[]byte) error {
	if err := c.requireSelected(); err != nil {
		return err
	}
	_, err := invoke(c.transport, common.NewDeleteRequest(keys...), common.MsgTOk)
	return err
}

func (c *Client) requireSelected() error {
	if c.Selected() == "" {
		return ErrNoDBSelected
	}
	return nil
}
