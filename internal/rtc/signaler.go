// Package rtc exchanges call signaling (offers, answers, ICE candidates)
// over the chat API. Media transport itself is handled out of core; this is
// only the HTTP plumbing the call flow rides on.
package rtc

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/debianrose/dumbchat/internal/gateway"
)

// Caller is the minimal gateway surface the signaler needs. Satisfied by
// gateway.Client.
type Caller interface {
	Do(ctx context.Context, method, path string, body, out any) error
}

// Offer is an SDP offer addressed to a user.
type Offer struct {
	ToUser string `json:"toUser"`
	SDP    string `json:"sdp"`
}

// Answer is an SDP answer addressed to a user.
type Answer struct {
	ToUser string `json:"toUser"`
	SDP    string `json:"sdp"`
}

// Candidate is an ICE candidate addressed to a user.
type Candidate struct {
	ToUser    string `json:"toUser"`
	Candidate string `json:"candidate"`
}

// OfferResponse is the polled /api/webrtc/offer payload.
type OfferResponse struct {
	Success bool   `json:"success"`
	Offer   string `json:"offer,omitempty"`
	From    string `json:"from,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Signaler sends and polls call signaling through the gateway.
type Signaler struct {
	api    Caller
	logger *slog.Logger
}

// NewSignaler builds a call signaler.
func NewSignaler(log *slog.Logger, api Caller) *Signaler {
	if log == nil {
		log = slog.Default()
	}
	return &Signaler{
		api:    api,
		logger: log.With(slog.String("service", "rtc")),
	}
}

// SendOffer posts an SDP offer for the callee to pick up.
func (s *Signaler) SendOffer(ctx context.Context, offer Offer) error {
	if strings.TrimSpace(offer.ToUser) == "" {
		return gateway.NewError(gateway.KindValidation, "send offer", errors.New("target user is required"))
	}
	return s.post(ctx, "/api/webrtc/offer", "send offer", offer)
}

// FetchOffer polls for a pending offer from fromUser. An empty Offer field
// means none is waiting.
func (s *Signaler) FetchOffer(ctx context.Context, fromUser string) (OfferResponse, error) {
	var resp OfferResponse
	path := "/api/webrtc/offer?fromUser=" + url.QueryEscape(fromUser)
	if err := s.api.Do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return OfferResponse{}, err
	}
	return resp, nil
}

// SendAnswer posts an SDP answer back to the caller.
func (s *Signaler) SendAnswer(ctx context.Context, answer Answer) error {
	if strings.TrimSpace(answer.ToUser) == "" {
		return gateway.NewError(gateway.KindValidation, "send answer", errors.New("target user is required"))
	}
	return s.post(ctx, "/api/webrtc/answer", "send answer", answer)
}

// SendCandidate posts one ICE candidate.
func (s *Signaler) SendCandidate(ctx context.Context, candidate Candidate) error {
	return s.post(ctx, "/api/webrtc/ice-candidate", "send candidate", candidate)
}

// EndCall tells the peer the call is over.
func (s *Signaler) EndCall(ctx context.Context, toUser string) error {
	return s.post(ctx, "/api/webrtc/end-call", "end call", map[string]string{"toUser": toUser})
}

func (s *Signaler) post(ctx context.Context, path, op string, body any) error {
	var resp gateway.BasicResponse
	if err := s.api.Do(ctx, http.MethodPost, path, body, &resp); err != nil {
		return err
	}
	if !resp.Success {
		msg := resp.Error
		if msg == "" {
			msg = "request rejected"
		}
		return gateway.NewError(gateway.KindAuth, op, errors.New(msg))
	}
	s.logger.Debug("signal sent", slog.String("op", op))
	return nil
}
