// Package observerstream streams a Tracker's per-frame stage events to a
// remote visualiser over gRPC: a server wrapping a fan-out channel of
// events, one subscriber channel per connected client. Events travel as
// google.golang.org/protobuf's structpb.Struct — a message type the
// protobuf library ships directly,
// so the service can be wired without checking in generated code for a
// handful of fields that change shape as Event grows.
package observerstream

import (
	"context"
	"fmt"
	"log"
	"net"
	"sync"
	"sync/atomic"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/banshee-data/lgt-tracker/tracker"
)

// Config holds the publisher's listen settings.
type Config struct {
	ListenAddr string
	MaxClients int
}

// DefaultConfig binds a local-only debug endpoint.
func DefaultConfig() Config {
	return Config{ListenAddr: "localhost:50151", MaxClients: 5}
}

// Publisher owns a gRPC server and fans out tracker.Event snapshots,
// converted to structpb.Struct, to every connected StreamEvents client.
// Attach it to a Tracker via AddObserver(publisher).
type Publisher struct {
	config Config

	server   *grpc.Server
	listener net.Listener

	eventCh chan *structpb.Struct
	mu      sync.RWMutex
	clients map[uint64]chan *structpb.Struct
	nextID  uint64

	running atomic.Bool
	wg      sync.WaitGroup
}

// NewPublisher creates an unstarted Publisher.
func NewPublisher(cfg Config) *Publisher {
	return &Publisher{
		config:  cfg,
		eventCh: make(chan *structpb.Struct, 64),
		clients: make(map[uint64]chan *structpb.Struct),
	}
}

// Start binds the listener and begins serving StreamEvents in the
// background.
func (p *Publisher) Start() error {
	if p.running.Load() {
		return fmt.Errorf("observerstream: publisher already running")
	}
	lis, err := net.Listen("tcp", p.config.ListenAddr)
	if err != nil {
		return fmt.Errorf("observerstream: listen: %w", err)
	}
	p.listener = lis
	p.server = grpc.NewServer()
	RegisterObserverStreamServer(p.server, p)
	p.running.Store(true)

	p.wg.Add(1)
	go p.broadcastLoop()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if err := p.server.Serve(lis); err != nil && p.running.Load() {
			log.Printf("observerstream: serve: %v", err)
		}
	}()
	return nil
}

// Stop gracefully shuts the server and listener down.
func (p *Publisher) Stop() {
	if !p.running.Load() {
		return
	}
	p.running.Store(false)
	if p.server != nil {
		p.server.GracefulStop()
	}
	if p.listener != nil {
		p.listener.Close()
	}
	p.wg.Wait()
}

func (p *Publisher) broadcastLoop() {
	defer p.wg.Done()
	for msg := range p.eventCh {
		p.mu.RLock()
		for _, ch := range p.clients {
			select {
			case ch <- msg:
			default: // slow client: drop rather than block the pipeline
			}
		}
		p.mu.RUnlock()
	}
}

// OnStage implements tracker.Observer: each stage event is converted to
// a structpb.Struct and queued for every connected client. Never blocks
// the caller's pipeline beyond the channel send.
func (p *Publisher) OnStage(e tracker.Event) {
	if !p.running.Load() {
		return
	}
	msg, err := eventToStruct(e)
	if err != nil {
		return
	}
	select {
	case p.eventCh <- msg:
	default: // publisher itself is backed up: drop this frame's event
	}
}

func eventToStruct(e tracker.Event) (*structpb.Struct, error) {
	patches := make([]interface{}, len(e.Patches.Patches))
	for i, p := range e.Patches.Patches {
		patches[i] = map[string]interface{}{
			"id":     float64(p.ID),
			"kind":   p.Kind,
			"x":      float64(p.Pos.X),
			"y":      float64(p.Pos.Y),
			"weight": float64(p.Weight),
			"active": p.Active,
			"age":    float64(p.Age),
		}
	}
	return structpb.NewStruct(map[string]interface{}{
		"stage":    e.Stage.String(),
		"frame":    float64(e.Frame),
		"patches":  patches,
		"centroid": []interface{}{float64(e.Patches.Centroid.X), float64(e.Patches.Centroid.Y)},
	})
}

// subscribe registers a new client channel and returns it along with a
// handle for unsubscribe.
func (p *Publisher) subscribe() (uint64, chan *structpb.Struct) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextID
	p.nextID++
	ch := make(chan *structpb.Struct, 16)
	p.clients[id] = ch
	return id, ch
}

func (p *Publisher) unsubscribe(id uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if ch, ok := p.clients[id]; ok {
		delete(p.clients, id)
		close(ch)
	}
}

// StreamEvents implements the generated ObserverStreamServer contract:
// it streams every subsequent OnStage event to the caller until the
// context is cancelled. req is currently unused (reserved for future
// stage-filtering) but accepted to match the streaming RPC shape.
func (p *Publisher) StreamEvents(req *structpb.Struct, stream grpc.ServerStreamingServer[structpb.Struct]) error {
	id, ch := p.subscribe()
	defer p.unsubscribe(id)

	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			if err := stream.Send(msg); err != nil {
				return err
			}
		}
	}
}

// ObserverStreamServer is the service contract a protoc-generated
// *_grpc.pb.go would normally supply; declared by hand here since the
// service has exactly one streaming method over a library-provided
// message type.
type ObserverStreamServer interface {
	StreamEvents(req *structpb.Struct, stream grpc.ServerStreamingServer[structpb.Struct]) error
}

var observerStreamServiceDesc = grpc.ServiceDesc{
	ServiceName: "lgttracker.observerstream.ObserverStream",
	HandlerType: (*ObserverStreamServer)(nil),
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "StreamEvents",
			ServerStreams: true,
			Handler: func(srv interface{}, stream grpc.ServerStream) error {
				req := new(structpb.Struct)
				if err := stream.RecvMsg(req); err != nil {
					return err
				}
				return srv.(ObserverStreamServer).StreamEvents(req, &observerStreamServerStream{stream})
			},
		},
	},
}

type observerStreamServerStream struct {
	grpc.ServerStream
}

func (s *observerStreamServerStream) Send(m *structpb.Struct) error {
	return s.ServerStream.SendMsg(m)
}

// RegisterObserverStreamServer registers srv with s, the hand-written
// equivalent of a generated RegisterXxxServer function.
func RegisterObserverStreamServer(s grpc.ServiceRegistrar, srv ObserverStreamServer) {
	s.RegisterService(&observerStreamServiceDesc, srv)
}

// NewObserverStreamClient dials target and returns a client-side stream
// of decoded events, the minimal hand-written counterpart to a
// generated ObserverStreamClient.
func NewObserverStreamClient(ctx context.Context, target string) (grpc.ServerStreamingClient[structpb.Struct], error) {
	conn, err := grpc.NewClient(target, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("observerstream: dial: %w", err)
	}
	stream, err := conn.NewStream(ctx, &observerStreamServiceDesc.Streams[0], "/"+observerStreamServiceDesc.ServiceName+"/StreamEvents")
	if err != nil {
		return nil, fmt.Errorf("observerstream: new stream: %w", err)
	}
	cs := &observerStreamClientStream{stream}
	if err := cs.SendMsg(&structpb.Struct{}); err != nil {
		return nil, err
	}
	if err := cs.CloseSend(); err != nil {
		return nil, err
	}
	return cs, nil
}

type observerStreamClientStream struct {
	grpc.ClientStream
}

func (c *observerStreamClientStream) Send(m *structpb.Struct) error { return c.SendMsg(m) }
func (c *observerStreamClientStream) Recv() (*structpb.Struct, error) {
	m := new(structpb.Struct)
	if err := c.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}
