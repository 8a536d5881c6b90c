package router

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResponse_Marshal_Success(t *testing.T) {
	out, err := ok(ResponseMoved, "train-1", "origin: station_a - destination: station_b").Marshal()
	require.NoError(t, err)

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(out, &got))
	assert.Equal(t, "trainMoved", got["type"])

	data := got["data"].(map[string]interface{})
	assert.Equal(t, "train-1", data["trainId"])
	assert.Equal(t, "origin: station_a - destination: station_b", data["message"])
	// 成功响应 errorCode 必须是 null
	code, present := data["errorCode"]
	assert.True(t, present)
	assert.Nil(t, code)
}

func TestResponse_Marshal_Failed(t *testing.T) {
	out, err := failed("train-1", CodeMoveFailed, "boom").Marshal()
	require.NoError(t, err)

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(out, &got))
	assert.Equal(t, "trainFailed", got["type"])

	data := got["data"].(map[string]interface{})
	assert.Equal(t, float64(CodeMoveFailed), data["errorCode"])
}

func TestResponse_Marshal_NoMessage(t *testing.T) {
	out, err := ok(ResponseStopped, "train-1", "").Marshal()
	require.NoError(t, err)

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(out, &got))
	data := got["data"].(map[string]interface{})
	msg, present := data["message"]
	assert.True(t, present)
	assert.Nil(t, msg)
}
