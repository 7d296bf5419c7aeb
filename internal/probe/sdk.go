package probe

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	websocketv1api "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket"
	msginterfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	listenClient "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"

	"github.com/voxlab/voice-client/internal/observability"
)

// probeCallbackHandler embeds the SDK's default handler and overrides only
// the lifecycle events the probe cares about
type probeCallbackHandler struct {
	*websocketv1api.DefaultCallbackHandler
	opened chan struct{}
	failed chan string
	closed chan struct{}
}

func (h *probeCallbackHandler) Open(openResponse *msginterfaces.OpenResponse) error {
	select {
	case h.opened <- struct{}{}:
	default:
	}
	return nil
}

func (h *probeCallbackHandler) Error(errorResponse *msginterfaces.ErrorResponse) error {
	select {
	case h.failed <- fmt.Sprintf("%+v", errorResponse):
	default:
	}
	return nil
}

func (h *probeCallbackHandler) Close(closeResponse *msginterfaces.CloseResponse) error {
	select {
	case h.closed <- struct{}{}:
	default:
	}
	return nil
}

// sdkHost extracts the bare host from a websocket base URL so the SDK dials
// the same endpoint as the primary transport. Empty or unparseable input
// falls back to the SDK default host.
func sdkHost(baseURL string) string {
	trimmed := strings.TrimSpace(baseURL)
	if trimmed == "" {
		return ""
	}
	parsed, err := url.Parse(trimmed)
	if err != nil || parsed.Host == "" {
		return ""
	}
	return parsed.Host
}

// SDKAlternate builds an AlternateProbe backed by the Deepgram SDK's
// streaming client. The SDK carries its own websocket stack and dial policy,
// so it can complete the handshake when the hand-rolled transport is blocked
// by a proxy or TLS interception that has nothing to do with the credential.
// Both transports must agree on baseURL or the probe would validate a
// different endpoint than the session uses.
func SDKAlternate(baseURL, model, language string, sampleRate, channels int) AlternateProbe {
	logger := observability.Component("probe-sdk")

	var cOptions *interfaces.ClientOptions
	if host := sdkHost(baseURL); host != "" {
		cOptions = &interfaces.ClientOptions{Host: host}
	}

	return func(ctx context.Context, apiKey string, timeout time.Duration) Result {
		handler := &probeCallbackHandler{
			DefaultCallbackHandler: websocketv1api.NewDefaultCallbackHandler(),
			opened:                 make(chan struct{}, 1),
			failed:                 make(chan string, 1),
			closed:                 make(chan struct{}, 1),
		}

		tOptions := &interfaces.LiveTranscriptionOptions{
			Model:      model,
			Language:   language,
			Encoding:   "linear16",
			SampleRate: sampleRate,
			Channels:   channels,
		}

		probeCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		client, err := listenClient.NewWSUsingCallback(
			probeCtx,
			apiKey,
			cOptions, // nil uses the SDK default host
			tOptions,
			handler,
		)
		if err != nil {
			return failureResult(fmt.Sprintf("alternate transport setup failed: %v", err))
		}
		defer client.Stop()

		if !client.Connect() {
			return failureResult("alternate transport failed to connect")
		}

		select {
		case <-handler.opened:
			logger.Info().Msg("Alternate transport handshake succeeded")
			return Result{
				Success: true,
				Message: "WebSocket connection established successfully (alternate transport)",
			}
		case msg := <-handler.failed:
			return failureResult(msg)
		case <-handler.closed:
			return Result{
				Success: false,
				Message: "connection closed before open acknowledgment (alternate transport)",
			}
		case <-probeCtx.Done():
			return Result{
				Success: false,
				Message: fmt.Sprintf("WebSocket probe timed out (%dms)", timeout.Milliseconds()),
				Code:    1006,
				Reason:  "Timeout",
			}
		}
	}
}
