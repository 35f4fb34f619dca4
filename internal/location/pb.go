package location

import "google.golang.org/grpc"

// RiderFix is a single GPS fix streamed from a rider's phone.
type RiderFix struct {
	RiderId  string
	Lat      float64
	Lng      float64
	Accuracy float64
	Ts       int64
}

// Summary is returned when the stream closes.
type Summary struct {
	Accepted int64
	Rejected int64
}

// IngestServer defines the gRPC contract for location ingest.
type IngestServer interface {
	StreamFixes(Ingest_StreamFixesServer) error
}

// RegisterIngestServer registers the service implementation.
func RegisterIngestServer(s *grpc.Server, srv IngestServer) {
	s.RegisterService(&grpc.ServiceDesc{
		ServiceName: "safeboda.location.Ingest",
		HandlerType: (*IngestServer)(nil),
		Streams: []grpc.StreamDesc{{
			StreamName:    "StreamFixes",
			Handler:       _Ingest_StreamFixes_Handler,
			ServerStreams: true,
			ClientStreams: true,
		}},
	}, srv)
}

// Ingest_StreamFixesServer is the client-streaming interface.
type Ingest_StreamFixesServer interface {
	grpc.ServerStream
	SendAndClose(*Summary) error
	Recv() (*RiderFix, error)
}

func _Ingest_StreamFixes_Handler(srv interface{}, stream grpc.ServerStream) error {
	return srv.(IngestServer).StreamFixes(&ingestStreamServer{ServerStream: stream})
}

type ingestStreamServer struct {
	grpc.ServerStream
}

func (s *ingestStreamServer) SendAndClose(summary *Summary) error {
	return s.ServerStream.SendMsg(summary)
}

func (s *ingestStreamServer) Recv() (*RiderFix, error) {
	msg := new(RiderFix)
	if err := s.ServerStream.RecvMsg(msg); err != nil {
		return nil, err
	}
	return msg, nil
}
