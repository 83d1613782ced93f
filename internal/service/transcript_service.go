package service

import (
	"context"
	"io"
	"strconv"

	"github.com/caseportal/messaging/internal/access"
	"github.com/caseportal/messaging/internal/audit"
	"github.com/caseportal/messaging/internal/transcript"
	"github.com/caseportal/messaging/pkg/storage"
)

// TranscriptService exports case history to object storage for
// participants of the case.
type TranscriptService interface {
	Export(ctx context.Context, userID, caseID string) (*transcript.Export, error)
	List(ctx context.Context, userID, caseID string) ([]storage.ObjectInfo, error)
	Open(ctx context.Context, userID, caseID, name string) (io.ReadCloser, error)
}

type transcriptService struct {
	exporter *transcript.Exporter
	access   access.Checker
}

func NewTranscriptService(exporter *transcript.Exporter, checker access.Checker) TranscriptService {
	return &transcriptService{exporter: exporter, access: checker}
}

func (s *transcriptService) Export(ctx context.Context, userID, caseID string) (*transcript.Export, error) {
	if err := authorizeCase(ctx, s.access, userID, caseID); err != nil {
		return nil, err
	}

	exp, err := s.exporter.Export(ctx, caseID)
	if err != nil {
		return nil, err
	}

	audit.LogWithDetail(ctx, audit.ActionTranscript, userID, caseID,
		exp.Key+":"+strconv.Itoa(exp.Messages), "case transcript exported")
	return exp, nil
}

func (s *transcriptService) List(ctx context.Context, userID, caseID string) ([]storage.ObjectInfo, error) {
	if err := authorizeCase(ctx, s.access, userID, caseID); err != nil {
		return nil, err
	}
	return s.exporter.List(ctx, caseID)
}

func (s *transcriptService) Open(ctx context.Context, userID, caseID, name string) (io.ReadCloser, error) {
	if err := authorizeCase(ctx, s.access, userID, caseID); err != nil {
		return nil, err
	}
	return s.exporter.Open(ctx, caseID, name)
}
