package location

import (
	"errors"
	"io"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pelino250/safeboda/internal/rider/domain"
	"github.com/pelino250/safeboda/internal/rider/service"
)

// Server ingests rider GPS fixes. Every accepted fix goes through the
// directory's UpdateLocation, so streamed updates get the same
// commit-then-invalidate path as the HTTP PATCH.
type Server struct {
	directory *service.Directory
	logger    *zap.Logger
}

// NewServer constructs the ingest server.
func NewServer(directory *service.Directory, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{directory: directory, logger: logger}
}

// StreamFixes consumes fixes until the client closes the stream. Bad fixes
// (unknown rider, out-of-range coordinates) are counted and skipped rather
// than tearing the stream down.
func (s *Server) StreamFixes(stream Ingest_StreamFixesServer) error {
	var summary Summary
	for {
		fix, err := stream.Recv()
		if err == io.EOF {
			return stream.SendAndClose(&summary)
		}
		if err != nil {
			return err
		}
		riderID, err := uuid.Parse(fix.RiderId)
		if err != nil {
			summary.Rejected++
			continue
		}
		point := domain.GeoPoint{Lat: fix.Lat, Lng: fix.Lng}
		if _, err := s.directory.UpdateLocation(stream.Context(), riderID, point); err != nil {
			summary.Rejected++
			if !errors.Is(err, domain.ErrNotFound) && !errors.Is(err, domain.ErrInvalidCoordinates) {
				s.logger.Warn("fix rejected",
					zap.String("rider_id", fix.RiderId), zap.Error(err))
			}
			continue
		}
		summary.Accepted++
	}
}
