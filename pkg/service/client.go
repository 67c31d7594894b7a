package service

import (
	"context"
	"errors"
	"sync"

	pkgerrors "github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/l4slab/slicecall/pkg/logger"
	"github.com/l4slab/slicecall/pkg/rtc"
	"github.com/l4slab/slicecall/pkg/signalling"
)

type CallClientParams struct {
	Signal  SignalConnection
	Session Session
	Events  *CallEvents
	// zero disables the debug HTTP server
	DebugPort uint32
	Logger    logger.Logger
}

// CallClient feeds inbound signalling into the call session and exposes the
// outbound call controls.
type CallClient struct {
	params CallClientParams
	logger logger.Logger
	debug  *DebugServer

	lock    sync.RWMutex
	clients []signalling.ClientInfo
}

func NewCallClient(params CallClientParams) *CallClient {
	if params.Logger == nil {
		params.Logger = logger.GetLogger()
	}
	if params.Events == nil {
		params.Events = NewCallEvents(params.Logger)
	}
	c := &CallClient{
		params: params,
		logger: params.Logger.WithName("client"),
	}
	if params.DebugPort > 0 {
		c.debug = NewDebugServer(params.DebugPort, params.Session, c.Clients, params.Logger)
	}
	return c
}

func (c *CallClient) Events() *CallEvents {
	return c.params.Events
}

// Run blocks until ctx is done or the signalling connection is lost. The
// session is closed on return.
func (c *CallClient) Run(ctx context.Context) error {
	defer c.params.Session.Close()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return c.readLoop(ctx)
	})
	g.Go(func() error {
		<-ctx.Done()
		return c.params.Signal.Close()
	})
	if c.debug != nil {
		g.Go(func() error {
			return c.debug.Start(ctx)
		})
	}
	if err := g.Wait(); err != nil && !errors.Is(err, rtc.ErrSessionClosed) {
		return err
	}
	return nil
}

func (c *CallClient) Call(ctx context.Context, peerID string) error {
	return c.params.Session.StartCall(ctx, peerID)
}

func (c *CallClient) Hangup(ctx context.Context) error {
	return c.params.Session.Hangup(ctx)
}

// Clients returns the last roster published by the signalling server.
func (c *CallClient) Clients() []signalling.ClientInfo {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return append([]signalling.ClientInfo(nil), c.clients...)
}

func (c *CallClient) readLoop(ctx context.Context) error {
	for {
		msg, err := c.params.Signal.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return pkgerrors.Wrap(err, "signalling connection lost")
		}

		if err := c.dispatch(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, rtc.ErrSessionClosed) {
				return err
			}
			if rtc.IsFatal(err) {
				c.logger.Errorw("could not handle signalling message", err, "type", msg.Type, "from", msg.From)
			} else {
				c.logger.Warnw("could not handle signalling message", err, "type", msg.Type, "from", msg.From)
			}
		}
	}
}

func (c *CallClient) dispatch(ctx context.Context, msg *signalling.Message) error {
	s := c.params.Session
	switch msg.Type {
	case signalling.MessageTypeOffer:
		c.logger.Infow("incoming call", "from", msg.From)
		return s.ReceiveOffer(ctx, msg.From, msg.Payload)
	case signalling.MessageTypeAnswer:
		return s.ReceiveAnswer(ctx, msg.From, msg.Payload)
	case signalling.MessageTypeICE:
		candidate, err := msg.Candidate()
		if err != nil {
			c.logger.Debugw("dropping undecodable candidate", "from", msg.From, "error", err)
			return nil
		}
		return s.ReceiveIceCandidate(ctx, msg.From, candidate)
	case signalling.MessageTypeHangup:
		return s.ReceiveHangup(ctx, msg.From)
	case signalling.MessageTypeClients:
		c.lock.Lock()
		c.clients = msg.Clients
		c.lock.Unlock()
		c.logger.Debugw("client list updated", "count", len(msg.Clients))
	}
	return nil
}
