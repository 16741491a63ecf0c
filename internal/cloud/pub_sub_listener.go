// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cloud

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/jaycherian/gcp-go-highlight-clipper/internal/core/cor"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// ErrUnprocessable marks a message that fails the same way on every
// delivery. Such messages are acked so they are not redelivered forever.
var ErrUnprocessable = errors.New("unprocessable message")

// Unprocessable wraps err with ErrUnprocessable.
func Unprocessable(err error) error {
	return fmt.Errorf("%w: %w", ErrUnprocessable, err)
}

// Redeliver reports whether a message whose command left errs behind should
// be delivered again: true when at least one error is not ErrUnprocessable.
func Redeliver(errs map[string]error) bool {
	for _, err := range errs {
		if err != nil && !errors.Is(err, ErrUnprocessable) {
			return true
		}
	}
	return false
}

// PubSubListener feeds every message of one subscription into a command.
// A message is acked when the command succeeds or fails with only
// unprocessable errors. Any other failure nacks it for redelivery.
type PubSubListener struct {
	client       *pubsub.Client
	subscription *pubsub.Subscription
	command      cor.Command
	done         chan struct{}
	once         sync.Once
}

func NewPubSubListener(pubsubClient *pubsub.Client, subscriptionID string, command cor.Command) (*PubSubListener, error) {
	return &PubSubListener{
		client:       pubsubClient,
		subscription: pubsubClient.Subscription(subscriptionID),
		command:      command,
		done:         make(chan struct{}),
	}, nil
}

// SetCommand attaches command unless one is already set.
func (m *PubSubListener) SetCommand(command cor.Command) {
	if m.command == nil {
		m.command = command
	}
}

// SetMaxExtension bounds how long a message is kept leased while the
// command runs.
func (m *PubSubListener) SetMaxExtension(d time.Duration) {
	m.subscription.ReceiveSettings.MaxExtension = d
}

// Done is closed once Receive returns.
func (m *PubSubListener) Done() <-chan struct{} {
	return m.done
}

// Listen starts receiving in the background until ctx is cancelled.
func (m *PubSubListener) Listen(ctx context.Context) {
	if m.command == nil {
		slog.Warn("pubsub listener has no command; not listening", "subscription", m.subscription.ID())
		m.once.Do(func() { close(m.done) })
		return
	}
	slog.Info("listening", "subscription", m.subscription.ID())

	go func() {
		defer m.once.Do(func() { close(m.done) })
		tracer := otel.Tracer("upload-trigger-listener")

		err := m.subscription.Receive(ctx, func(msgCtx context.Context, msg *pubsub.Message) {
			spanCtx, span := tracer.Start(msgCtx, "receive-message")
			defer span.End()
			span.SetAttributes(
				attribute.String("message_id", msg.ID),
				attribute.Int("bytes", len(msg.Data)))

			chainCtx := cor.NewBaseContext()
			chainCtx.SetContext(spanCtx)
			chainCtx.Add(cor.CtxIn, string(msg.Data))
			m.command.Execute(chainCtx)

			if chainCtx.HasErrors() {
				span.SetStatus(codes.Error, "failed")
				for name, e := range chainCtx.GetErrors() {
					slog.Error("upload trigger failed", "command", name, "message_id", msg.ID, "error", e)
				}
				if Redeliver(chainCtx.GetErrors()) {
					msg.Nack()
					return
				}
				slog.Warn("dropping unprocessable message", "message_id", msg.ID)
				msg.Ack()
				return
			}
			span.SetStatus(codes.Ok, "success")
			msg.Ack()
		})
		if err != nil {
			slog.Error("error receiving messages", "subscription", m.subscription.ID(), "error", err)
		}
	}()
}
