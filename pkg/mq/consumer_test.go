package mq

import (
	"testing"

	"github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
)

func TestHeaderString(t *testing.T) {
	headers := amqp091.Table{
		TraceHeader: "abc123",
		"x-count":   int32(3),
	}

	assert.Equal(t, "abc123", headerString(headers, TraceHeader))
	assert.Equal(t, "", headerString(headers, "x-count"))
	assert.Equal(t, "", headerString(headers, "missing"))
	assert.Equal(t, "", headerString(nil, TraceHeader))
}
