// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Driftboard Contributors

package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogMailer_SendVerificationCode(t *testing.T) {
	var buf bytes.Buffer
	mailer := NewLogMailer(slog.New(slog.NewJSONHandler(&buf, nil)))

	err := mailer.SendVerificationCode(context.Background(), "alice@example.com", "ABCD2345")
	require.NoError(t, err)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "alice@example.com", entry["email"])
	assert.Equal(t, "ABCD2345", entry["code"])
}

func TestLogMailer_SendPasswordReset(t *testing.T) {
	var buf bytes.Buffer
	mailer := NewLogMailer(slog.New(slog.NewJSONHandler(&buf, nil)))

	err := mailer.SendPasswordReset(context.Background(), "alice@example.com", "sometoken")
	require.NoError(t, err)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "sometoken", entry["token"])
}
