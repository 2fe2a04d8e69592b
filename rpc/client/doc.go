// Package client implements a Go client for the mKV wire protocol.
//
// A Client wraps one transport connection and therefore one server session:
// the database selected with Use stays selected for every later command of
// that client. Data commands fail locally with ErrNoDBSelected before a
// successful Use, and Error responses of the server are returned as *ServerError.
//
// Key Components:
//
//   - NewClient: connects a transport.IRPCClientTransport (tcp or unix) and
//     returns a Client.
//
//   - Range: one page of pairs starting at Begin(), End(), FromAsc(key) or
//     FromDesc(key), optionally skipping the start key.
//
//   - Scan / ScanReverse: walk the whole database page by page, continuing
//     each page exclusively after the last key of the previous one.
//
// Usage Example:
//
//	config := common.ClientConfig{Endpoint: "localhost:1935", TimeoutSecond: 5}
//	c, _ := client.NewClient(config, tcp.NewTCPClientTransport())
//	defer c.Close()
//
//	_ = c.Use("users")
//	_ = c.Set([]byte("alice"), []byte("admin"))
//	value, ok, _ := c.Get([]byte("alice"))
//
//	_ = c.Scan(100, func(kv common.KV) error {
//		fmt.Printf("%s=%s\n", kv.Key, kv.Value)
//		return nil
//	})
//
// Thread Safety:
//
//	A Client can be shared between goroutines. Requests are sent one at a
//	time because the protocol has no request ids. Use one Client per
//	goroutine for parallel requests.
package client
