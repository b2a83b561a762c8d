// SPDX-FileCopyrightText: 2025 Deutsche Telekom IT GmbH
//
// SPDX-License-Identifier: Apache-2.0

package traceroute

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_icmpOutcome(t *testing.T) {
	tests := []struct {
		name string
		rep  reply
		want ProbeOutcome
	}{
		{"echo reply", reply{kind: replyEchoReply}, OutcomeReached},
		{"unreachable", reply{kind: replyUnreachable, code: icmpUnreachableHost}, OutcomeUnreachable},
		{"time exceeded", reply{kind: replyTimeExceeded}, OutcomeTimeExceeded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, icmpOutcome(tt.rep))
		})
	}
}

func Test_awaitReply(t *testing.T) {
	router := net.ParseIP("10.0.0.1")

	t.Run("maps a routed reply", func(t *testing.T) {
		start := time.Now()
		ch := make(chan reply, 1)
		ch <- reply{kind: replyTimeExceeded, from: router, at: start.Add(25 * time.Millisecond)}

		res, err := awaitReply(t.Context(), ch, start, time.Second, 4, icmpOutcome)
		require.NoError(t, err)
		assert.Equal(t, 4, res.TTL)
		assert.Equal(t, OutcomeTimeExceeded, res.Outcome)
		assert.Equal(t, 25*time.Millisecond, res.RTT)
		assert.True(t, res.From.Equal(router))
	})

	t.Run("times out into a timed out result", func(t *testing.T) {
		ch := make(chan reply, 1)

		res, err := awaitReply(t.Context(), ch, time.Now(), 10*time.Millisecond, 7, icmpOutcome)
		require.NoError(t, err)
		assert.Equal(t, OutcomeTimedOut, res.Outcome)
		assert.Equal(t, 7, res.TTL)
		assert.Nil(t, res.From)
		assert.Zero(t, res.RTT)
	})

	t.Run("cancellation is an error", func(t *testing.T) {
		ctx, cancel := context.WithCancel(t.Context())
		cancel()
		ch := make(chan reply, 1)

		_, err := awaitReply(ctx, ch, time.Now(), time.Second, 1, icmpOutcome)
		assert.ErrorIs(t, err, context.Canceled)
	})
}
