package client

import (
	"github.com/ValentinKolb/mKV/rpc/common"
	"github.com/cockroachdb/errors"
)

// RangeMode is where a range starts and which way it walks
type RangeMode struct {
	kind common.MessageType // MsgTRangeBegin, MsgTRangeEnd or MsgTRangeFromAsc/Desc
	key  []byte
}

// Begin walks ascending from the smallest key
func Begin() RangeMode { return RangeMode{kind: common.MsgTRangeBegin} }

// End walks descending from the largest key
func End() RangeMode { return RangeMode{kind: common.MsgTRangeEnd} }

// FromAsc walks ascending from key
func FromAsc(key []byte) RangeMode { return RangeMode{kind: common.MsgTRangeFromAsc, key: key} }

// FromDesc walks descending from key
func FromDesc(key []byte) RangeMode { return RangeMode{kind: common.MsgTRangeFromDesc, key: key} }

// request builds the range command. exclusive only applies to the From modes.
func (m RangeMode) request(pageSize uint16, exclusive bool) *common.RangeCmd {
	switch m.kind {
	case common.MsgTRangeBegin:
		return common.NewRangeBeginRequest(pageSize)
	case common.MsgTRangeEnd:
		return common.NewRangeEndRequest(pageSize)
	default:
		return common.NewRangeFromRequest(pageSize, m.key, m.kind == common.MsgTRangeFromDesc, exclusive)
	}
}

// Range returns up to pageSize pairs starting at mode. With exclusive set,
// a pair whose key equals the start key is skipped.
func (c *Client) Range(mode RangeMode, pageSize uint16, exclusive bool) ([]common.KV, error) {
	if err := c.requireSelected(); err != nil {
		return nil, err
	}
	resp, err := invoke(c.transport, mode.request(pageSize, exclusive), common.MsgTPairs)
	if err != nil {
		return nil, err
	}
	pairs := resp.(*common.PairsResp).Pairs
	if len(pairs) > int(pageSize) {
		return nil, errors.Wrapf(ErrUnexpectedResponse, "%d pairs for a page of %d", len(pairs), pageSize)
	}
	return pairs, nil
}

// Scan calls fn for every pair of the selected database in ascending key
// order, fetching pageSize pairs per request. Each page continues exclusively
// after the last key of the previous one. Scan stops at the first error of fn.
func (c *Client) Scan(pageSize uint16, fn func(kv common.KV) error) error {
	return c.scan(Begin(), pageSize, fn)
}

// ScanReverse is Scan in descending key order
func (c *Client) ScanReverse(pageSize uint16, fn func(kv common.KV) error) error {
	return c.scan(End(), pageSize, fn)
}

func (c *Client) scan(mode RangeMode, pageSize uint16, fn func(kv common.KV) error) error {
	if pageSize == 0 {
		return errors.Wrap(ErrInvalidData, "page size must be positive")
	}

	desc := mode.kind == common.MsgTRangeEnd
	exclusive := false
	for {
		page, err := c.Range(mode, pageSize, exclusive)
		if err != nil {
			return err
		}
		for _, kv := range page {
			if err := fn(kv); err != nil {
				return err
			}
		}
		if len(page) < int(pageSize) {
			return nil
		}

		last := page[len(page)-1].Key
		if desc {
			mode = FromDesc(last)
		} else {
			mode = FromAsc(last)
		}
		exclusive = true
	}
}
