package router

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"train-router/internal/train"
	"train-router/pkg/log"
)

func newTestDispatcher(t *testing.T) (*Dispatcher, *testEnv) {
	t.Helper()
	env := newTestEnv(t)
	logger, err := log.NewLogger(&log.Config{Level: "error"})
	require.NoError(t, err)
	return NewDispatcher(env.router, logger), env
}

func TestDispatcher_ValidCommand(t *testing.T) {
	d, env := newTestDispatcher(t)
	env.routes.Put(train.Route{Suffix: "t1", Stations: []train.StationID{"a"}})

	out := d.Dispatch(context.Background(), []byte(`{"type":"trainBuilt","data":{"trainId":"t1"}}`))
	require.NotNil(t, out)

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(out, &got))
	assert.Equal(t, "trainBuilt", got["type"])
}

func TestDispatcher_MalformedDropped(t *testing.T) {
	d, _ := newTestDispatcher(t)
	out := d.Dispatch(context.Background(), []byte(`garbage`))
	assert.Nil(t, out, "格式错误的消息不产生响应")
}

func TestDispatcher_UnknownEventFails(t *testing.T) {
	d, _ := newTestDispatcher(t)
	out := d.Dispatch(context.Background(), []byte(`{"type":"bogus","data":{"id":"t1"}}`))
	require.NotNil(t, out)

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(out, &got))
	assert.Equal(t, "trainFailed", got["type"])
	data := got["data"].(map[string]interface{})
	assert.Equal(t, "t1", data["trainId"])
}
