package wire_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foliodb/foliodb/redis/redistest"
	"github.com/foliodb/foliodb/redis/wire"
)

func dialTest(t *testing.T) (*redistest.Server, *wire.Client) {
	t.Helper()
	srv, err := redistest.Start()
	require.NoError(t, err)
	t.Cleanup(srv.Close)

	c, err := wire.Dial(srv.Addr(), wire.DialConfig{
		ConnectTimeout: time.Second,
		ReceiveTimeout: time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return srv, c
}

func TestPing(t *testing.T) {
	_, c := dialTest(t)
	status, err := c.Ping()
	require.NoError(t, err)
	assert.Equal(t, "PONG", status)
}

func TestAuth(t *testing.T) {
	srv, err := redistest.StartAuth("secret")
	require.NoError(t, err)
	defer srv.Close()

	_, err = wire.Dial(srv.Addr(), wire.DialConfig{Password: "wrong"})
	require.Error(t, err)

	c, err := wire.Dial(srv.Addr(), wire.DialConfig{Password: "secret"})
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Ping()
	assert.NoError(t, err)
}

func TestStringOperations(t *testing.T) {
	_, c := dialTest(t)

	_, ok, err := c.Get("missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set("k", []byte("v1")))
	val, ok, err := c.Get("k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v1"), val)

	n, err := c.Del("k", "missing")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, ok, err = c.Get("k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHashOperations(t *testing.T) {
	_, c := dialTest(t)

	_, err := c.HSet("h", "trio", []byte("payload"))
	require.NoError(t, err)
	_, err = c.HSet("h", "mod", []byte("123"))
	require.NoError(t, err)

	val, ok, err := c.HGet("h", "trio")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("payload"), val)

	all, err := c.HGetAll("h")
	require.NoError(t, err)
	assert.Equal(t, map[string][]byte{
		"trio": []byte("payload"),
		"mod":  []byte("123"),
	}, all)
}

func TestSetOperations(t *testing.T) {
	_, c := dialTest(t)

	n, err := c.SAdd("s", "a", "b", "a")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	members, err := c.SMembers("s")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, members)

	card, err := c.SCard("s")
	require.NoError(t, err)
	assert.Equal(t, int64(2), card)

	_, err = c.SRem("s", "a")
	require.NoError(t, err)
	members, err = c.SMembers("s")
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, members)
}

func TestSortedSetOperations(t *testing.T) {
	_, c := dialTest(t)

	for i, m := range []string{"v0", "v1", "v2", "v3"} {
		_, err := c.ZAdd("z", int64(i*100), []byte(m))
		require.NoError(t, err)
	}

	card, err := c.ZCard("z")
	require.NoError(t, err)
	assert.Equal(t, int64(4), card)

	// inclusive range
	members, err := c.ZRangeByScore("z", "100", "300", 0)
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("v1"), []byte("v2"), []byte("v3")}, members)

	// exclusive bound and limit
	members, err = c.ZRangeByScore("z", "(100", "+inf", 1)
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("v2")}, members)

	// descending with limit
	members, err = c.ZRevRangeByScore("z", "(300", "-inf", 2)
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("v2"), []byte("v1")}, members)

	// range delete
	n, err := c.ZRemRangeByScore("z", "100", "200")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	card, err = c.ZCard("z")
	require.NoError(t, err)
	assert.Equal(t, int64(2), card)
}

func TestTransaction(t *testing.T) {
	_, c := dialTest(t)

	require.NoError(t, c.Multi())
	assert.True(t, c.InTx())

	// queued operations return zero values
	require.NoError(t, c.Set("a", []byte("1")))
	n, err := c.SAdd("s", "x")
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	replies, ok, err := c.Exec()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, replies, 2)
	assert.False(t, c.InTx())

	val, found, err := c.Get("a")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("1"), val)
}

func TestDiscard(t *testing.T) {
	_, c := dialTest(t)

	require.NoError(t, c.Multi())
	require.NoError(t, c.Set("a", []byte("1")))
	require.NoError(t, c.Discard())
	assert.False(t, c.InTx())

	_, found, err := c.Get("a")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestPipeline(t *testing.T) {
	_, c := dialTest(t)

	replies, err := c.Pipeline(func() error {
		if err := c.Set("p1", []byte("a")); err != nil {
			return err
		}
		if err := c.Set("p2", []byte("b")); err != nil {
			return err
		}
		_, _, err := c.Get("p1")
		return err
	})
	require.NoError(t, err)
	require.Len(t, replies, 3)

	b, ok := replies[2].Bytes()
	require.True(t, ok)
	assert.Equal(t, []byte("a"), b)
}

func TestRemoteErrorKeepsSession(t *testing.T) {
	_, c := dialTest(t)

	_, err := c.ZRangeByScore("z", "abc", "1", 0)
	var rerr *wire.RemoteError
	require.ErrorAs(t, err, &rerr)

	// the session stays usable after a server-side error
	_, err = c.Ping()
	assert.NoError(t, err)
	assert.False(t, c.Broken())
}

func TestDialFailure(t *testing.T) {
	_, err := wire.Dial("127.0.0.1:1", wire.DialConfig{ConnectTimeout: 200 * time.Millisecond})
	require.Error(t, err)
	var terr *wire.TransportError
	assert.ErrorAs(t, err, &terr)
}
