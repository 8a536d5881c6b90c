package router

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"train-router/internal/train"
	pkgerrors "train-router/pkg/errors"
)

func TestParseCommand_Pushed(t *testing.T) {
	body := []byte(`{"type":"trainPushed","data":{"repositoryFullName":"station_a/train-1","operator":"alice"}}`)
	cmd, err := ParseCommand(body)
	require.NoError(t, err)
	assert.Equal(t, EventTrainPushed, cmd.Event)
	assert.Equal(t, train.ID("train-1"), cmd.TrainID)
	assert.Equal(t, "station_a", cmd.Project)
	assert.Equal(t, "alice", cmd.Operator)
}

func TestParseCommand_Built_TrainID(t *testing.T) {
	body := []byte(`{"type":"trainBuilt","data":{"trainId":"train-1"}}`)
	cmd, err := ParseCommand(body)
	require.NoError(t, err)
	assert.Equal(t, EventTrainBuilt, cmd.Event)
	assert.Equal(t, train.ID("train-1"), cmd.TrainID)
}

func TestParseCommand_Built_RepositoryName(t *testing.T) {
	body := []byte(`{"type":"trainBuilt","data":{"repositoryFullName":"pht_incoming/train-1"}}`)
	cmd, err := ParseCommand(body)
	require.NoError(t, err)
	assert.Equal(t, train.ID("train-1"), cmd.TrainID)
}

func TestParseCommand_IDEvents(t *testing.T) {
	for _, event := range []EventType{EventTrainStart, EventTrainStop, EventTrainStatus, EventTrainReset} {
		body := []byte(`{"type":"` + string(event) + `","data":{"id":"train-1"}}`)
		cmd, err := ParseCommand(body)
		require.NoError(t, err, "event %s", event)
		assert.Equal(t, event, cmd.Event)
		assert.Equal(t, train.ID("train-1"), cmd.TrainID)
	}
}

func TestParseCommand_Malformed(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"not json", `not json`},
		{"missing type", `{"data":{"id":"t"}}`},
		{"missing data", `{"type":"startTrain"}`},
		{"missing id", `{"type":"startTrain","data":{}}`},
		{"bad repository name", `{"type":"trainPushed","data":{"repositoryFullName":"no-slash"}}`},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := ParseCommand([]byte(c.body))
			assert.True(t, errors.Is(err, pkgerrors.ErrMalformedMessage), "got %v", err)
		})
	}
}

func TestParseCommand_UnknownEvent(t *testing.T) {
	body := []byte(`{"type":"bogusEvent","data":{"id":"train-1"}}`)
	cmd, err := ParseCommand(body)
	assert.True(t, errors.Is(err, pkgerrors.ErrUnknownEvent), "got %v", err)
	// 失败响应要能带上 train id
	assert.Equal(t, train.ID("train-1"), cmd.TrainID)
}
