package dht

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mosaicnetworks/streamlet/src/crypto"
	"github.com/mosaicnetworks/streamlet/src/serial"
)

func TestRequestID(t *testing.T) {
	id, err := requestID(0x0102)
	require.NoError(t, err)
	assert.Equal(t, Hash(crypto.Blake3([]byte{0x02, 0x01})), id)

	other, err := requestID(0x0201)
	require.NoError(t, err)
	assert.NotEqual(t, id, other)

	_, err = NewRequestID()
	assert.NoError(t, err)
}

func TestKeyRequestResponse(t *testing.T) {
	from := Hash(crypto.Blake3([]byte("alice")))
	to := Hash(crypto.Blake3([]byte("bob")))
	key := Hash(crypto.Blake3([]byte("key")))

	req, err := NewKeyRequest(from, to, key)
	require.NoError(t, err)

	data, err := serial.Serialize(req)
	require.NoError(t, err)
	assert.Len(t, data, 4*32)

	var gotReq KeyRequest
	require.NoError(t, serial.Deserialize(data, &gotReq))
	assert.Equal(t, *req, gotReq)

	resp := gotReq.Respond([]byte("value"))
	assert.Equal(t, req.ID, resp.ID)
	assert.Equal(t, to, resp.From)
	assert.Equal(t, from, resp.To)

	data, err = serial.Serialize(resp)
	require.NoError(t, err)
	assert.Len(t, data, 4*32+1+5)

	var gotResp KeyResponse
	require.NoError(t, serial.Deserialize(data, &gotResp))
	assert.Equal(t, *resp, gotResp)

	// a response cut short is malformed
	assert.Error(t, serial.Deserialize(data[:len(data)-1], &gotResp))
}

func TestLookupRequest(t *testing.T) {
	daemon := Hash(crypto.Blake3([]byte("daemon")))
	key := Hash(crypto.Blake3([]byte("key")))

	req, err := NewLookupRequest(daemon, key, LookupRemove)
	require.NoError(t, err)

	data, err := serial.Serialize(req)
	require.NoError(t, err)
	require.Len(t, data, 3*32+1)
	assert.Equal(t, LookupRemove, data[len(data)-1])

	var got LookupRequest
	require.NoError(t, serial.Deserialize(data, &got))
	assert.Equal(t, *req, got)

	_, err = NewLookupRequest(daemon, key, 2)
	assert.Error(t, err)
}

func TestMessageNames(t *testing.T) {
	assert.Equal(t, "keyrequest", (&KeyRequest{}).Name())
	assert.Equal(t, "keyresponse", (&KeyResponse{}).Name())
	assert.Equal(t, "lookuprequest", (&LookupRequest{}).Name())
}
