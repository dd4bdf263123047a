package wire

import "errors"

// --------------------------------------------------------------------------
// Transactions
// --------------------------------------------------------------------------

// Multi opens a transaction. Subsequent operations are queued server-side
// and acknowledged individually; typed operations return their zero value
// until Exec resolves them.
func (c *Client) Multi() error {
	if c.inTx {
		return errors.New("redis: nested transaction")
	}
	if err := c.expectOK("MULTI"); err != nil {
		return err
	}
	c.inTx = true
	return nil
}

// Exec commits the transaction and returns the ordered per-op results.
// ok is false when the server aborted the transaction (a watched key was
// modified); the queued operations had no effect in that case.
func (c *Client) Exec() (replies []Reply, ok bool, err error) {
	if !c.inTx {
		return nil, false, errors.New("redis: exec outside transaction")
	}
	c.inTx = false
	r, err := c.do(args("EXEC"))
	if err != nil {
		return nil, false, err
	}
	if r.IsNil() {
		return nil, false, nil
	}
	return r.Arr(), true, nil
}

// Discard rolls back the transaction. Must be called after any error raised
// while queueing.
func (c *Client) Discard() error {
	if !c.inTx {
		return nil
	}
	c.inTx = false
	return c.expectOK("DISCARD")
}

// InTx reports whether the session currently holds an open transaction.
func (c *Client) InTx() bool { return c.inTx }

// --------------------------------------------------------------------------
// Pipelines
// --------------------------------------------------------------------------

// Pipeline runs fn as a scoped batch: operations issued inside fn are
// written but not individually read; on scope exit the session reads
// exactly as many replies as operations queued and returns them in order.
// Per-op server errors are carried in the replies, not returned here.
func (c *Client) Pipeline(fn func() error) ([]Reply, error) {
	if c.piping {
		return nil, errors.New("redis: nested pipeline")
	}
	if c.broken {
		return nil, &TransportError{Op: "pipeline", Err: errSessionBroken}
	}

	c.piping = true
	c.pipelined = 0
	err := fn()
	n := c.pipelined
	c.piping = false
	c.pipelined = 0

	if err != nil {
		// Commands may already be on the wire, the session is out of sync.
		c.broken = true
		return nil, err
	}
	if err := c.w.Flush(); err != nil {
		return nil, c.fail("pipeline", err)
	}

	replies := make([]Reply, n)
	for i := 0; i < n; i++ {
		r, err := c.readOne("pipeline")
		if err != nil {
			var remoteErr *RemoteError
			if !errors.As(err, &remoteErr) {
				return nil, err
			}
		}
		replies[i] = r
	}
	return replies, nil
}
