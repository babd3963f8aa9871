package queue

import (
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeJob(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{
			name: "valid",
			body: `{"id":"job-1","status":"pending","request":{"source":"s3://uploads/a.mp4","range":{"start":0,"end":4},"format":"webm"}}`,
		},
		{name: "missing id", body: `{"status":"pending"}`, wantErr: true},
		{name: "not json", body: `render me`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job, err := DecodeJob([]byte(tt.body))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "job-1", job.ID)
			assert.Equal(t, 4.0, job.Request.Range.End)
			assert.Equal(t, "webm", job.Request.Format)
		})
	}
}

func TestRetryCount(t *testing.T) {
	tests := []struct {
		name    string
		headers amqp.Table
		want    int
	}{
		{"missing", amqp.Table{}, 0},
		{"nil table", nil, 0},
		{"int32", amqp.Table{retryHeader: int32(2)}, 2},
		{"int64", amqp.Table{retryHeader: int64(3)}, 3},
		{"int16", amqp.Table{retryHeader: int16(1)}, 1},
		{"wrong type", amqp.Table{retryHeader: "2"}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RetryCount(tt.headers))
		})
	}
}

func TestBackoffDelay(t *testing.T) {
	assert.Equal(t, 30*time.Second, BackoffDelay(0))
	assert.Equal(t, time.Minute, BackoffDelay(1))
	assert.Equal(t, 2*time.Minute, BackoffDelay(2))
	assert.Equal(t, 10*time.Minute, BackoffDelay(8))
	assert.Equal(t, 30*time.Second, BackoffDelay(-1))
}
