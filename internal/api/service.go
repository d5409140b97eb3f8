// Package api serves the daemon's command API over gRPC. Requests and
// responses are google.protobuf.Struct frames; the service descriptor is
// declared here instead of generated.
package api

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/chat"
	"github.com/matheus3301/chatsync/internal/command"
	"github.com/matheus3301/chatsync/internal/status"
	"github.com/matheus3301/chatsync/internal/store"
	"github.com/matheus3301/chatsync/internal/wire"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "chatsync.v1.CommandService"

const defaultListLimit = 50

// View is the read side of the client state.
type View interface {
	Metas() []chat.Meta
	Messages(id chat.ConversationID) []chat.Message
	Selected() chat.ConversationID
	LoadingKeys() []string
}

// Searcher finds persisted messages.
type Searcher interface {
	SearchMessages(query string, conversationID string, limit int) ([]store.SearchResult, error)
}

// CommandService implements chatsync.v1.CommandService.
type CommandService struct {
	sessionName string
	startedAt   time.Time
	dispatcher  command.Dispatcher
	view        View
	search      Searcher
	machine     *status.Machine
	bus         *bus.Bus
	logger      *zap.Logger
}

// NewCommandService creates the service. search may be nil, in which case
// SearchMessages reports Unavailable.
func NewCommandService(sessionName string, d command.Dispatcher, v View, search Searcher, m *status.Machine, b *bus.Bus, logger *zap.Logger) *CommandService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CommandService{
		sessionName: sessionName,
		startedAt:   time.Now(),
		dispatcher:  d,
		view:        v,
		search:      search,
		machine:     m,
		bus:         b,
		logger:      logger.Named("api"),
	}
}

// Register adds svc to a gRPC server.
func Register(s grpc.ServiceRegistrar, svc *CommandService) {
	s.RegisterService(&ServiceDesc, svc)
}

// ServiceDesc describes chatsync.v1.CommandService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*any)(nil),
	Methods: []grpc.MethodDesc{
		unary("Dispatch", (*CommandService).dispatch),
		unary("ListConversations", (*CommandService).listConversations),
		unary("ListMessages", (*CommandService).listMessages),
		unary("SearchMessages", (*CommandService).searchMessages),
		unary("Status", (*CommandService).status),
	},
	Streams: []grpc.StreamDesc{{
		StreamName:    "WatchEvents",
		Handler:       watchEvents,
		ServerStreams: true,
	}},
}

type unaryFunc func(s *CommandService, ctx context.Context, req gjson.Result) (any, error)

func unary(name string, fn unaryFunc) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			req := &structpb.Struct{}
			if err := dec(req); err != nil {
				return nil, err
			}
			call := func(ctx context.Context, req any) (any, error) {
				j, err := wire.JSON(req.(*structpb.Struct))
				if err != nil {
					return nil, grpcstatus.Errorf(codes.InvalidArgument, "%v", err)
				}
				out, err := fn(srv.(*CommandService), ctx, j)
				if err != nil {
					return nil, err
				}
				resp, err := wire.Struct(out)
				if err != nil {
					return nil, grpcstatus.Errorf(codes.Internal, "%v", err)
				}
				return resp, nil
			}
			if interceptor == nil {
				return call(ctx, req)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + name}
			return interceptor(ctx, req, info, call)
		},
	}
}

func (s *CommandService) dispatch(_ context.Context, req gjson.Result) (any, error) {
	cmd, err := DecodeCommand(req)
	if err != nil {
		return nil, grpcstatus.Errorf(codes.InvalidArgument, "%v", err)
	}
	s.dispatcher.Dispatch(cmd)
	s.logger.Debug("command dispatched", zap.String("type", command.Name(cmd)))
	return map[string]any{"accepted": true, "type": command.Name(cmd)}, nil
}

func (s *CommandService) listConversations(_ context.Context, req gjson.Result) (any, error) {
	limit := listLimit(req)
	metas := s.view.Metas()
	if len(metas) > limit {
		metas = metas[:limit]
	}
	convs := make([]Conversation, 0, len(metas))
	for _, m := range metas {
		convs = append(convs, conversationView(m))
	}
	return map[string]any{
		"conversations": convs,
		"selected":      string(s.view.Selected()),
	}, nil
}

func (s *CommandService) listMessages(_ context.Context, req gjson.Result) (any, error) {
	id := req.Get("conversation_id").String()
	if id == "" {
		return nil, grpcstatus.Errorf(codes.InvalidArgument, "conversation_id is required")
	}
	msgs := s.view.Messages(chat.ConversationID(id))
	if limit := listLimit(req); len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, messageView(m))
	}
	return map[string]any{"messages": out}, nil
}

func (s *CommandService) searchMessages(_ context.Context, req gjson.Result) (any, error) {
	if s.search == nil {
		return nil, grpcstatus.Errorf(codes.Unavailable, "search not available")
	}
	query := req.Get("query").String()
	if query == "" {
		return nil, grpcstatus.Errorf(codes.InvalidArgument, "query is required")
	}
	results, err := s.search.SearchMessages(query, req.Get("conversation_id").String(), listLimit(req))
	if err != nil {
		return nil, grpcstatus.Errorf(codes.Internal, "search messages: %v", err)
	}
	hits := make([]SearchHit, 0, len(results))
	for _, r := range results {
		hits = append(hits, searchHit(r))
	}
	return map[string]any{"results": hits}, nil
}

func (s *CommandService) status(_ context.Context, _ gjson.Result) (any, error) {
	st := Status{
		Session:       s.sessionName,
		UptimeMs:      time.Since(s.startedAt).Milliseconds(),
		Loading:       s.view.LoadingKeys(),
		Conversations: len(s.view.Metas()),
		Selected:      string(s.view.Selected()),
		DroppedEvents: s.bus.Dropped(),
		Subscribers:   s.bus.Subscribers(),
	}
	if s.machine != nil {
		st.Status = string(s.machine.Current())
	}
	return st, nil
}

func watchEvents(srv any, stream grpc.ServerStream) error {
	s := srv.(*CommandService)
	req := &structpb.Struct{}
	if err := stream.RecvMsg(req); err != nil {
		return err
	}
	namespace := req.GetFields()["namespace"].GetStringValue()
	if s.bus == nil {
		return grpcstatus.Errorf(codes.Unavailable, "event bus not available")
	}
	ch, unsub := s.bus.Subscribe(namespace, 256)
	defer unsub()

	for {
		select {
		case evt := <-ch:
			frame, err := s.eventFrame(evt)
			if err != nil {
				s.logger.Warn("skipping event", zap.String("kind", evt.Kind), zap.Error(err))
				continue
			}
			if err := stream.SendMsg(frame); err != nil {
				return err
			}
		case <-stream.Context().Done():
			return nil
		}
	}
}

func (s *CommandService) eventFrame(evt bus.Event) (*structpb.Struct, error) {
	payload, err := json.Marshal(eventPayload(evt.Payload))
	if err != nil {
		return nil, err
	}
	return wire.Struct(Event{
		ID:           uuid.New().String(),
		Session:      s.sessionName,
		Kind:         evt.Kind,
		OccurredAtMs: evt.Timestamp.UnixMilli(),
		Payload:      payload,
	})
}

func listLimit(req gjson.Result) int {
	if n := int(req.Get("limit").Int()); n > 0 {
		return n
	}
	return defaultListLimit
}
